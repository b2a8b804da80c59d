// Package eventlog implements the append-only Event Log (spec §4.9):
// one JSONL file per event type, with hourly rotation (the hour is
// baked into the filename) layered on top of lumberjack's size-based
// rotation, plus credential redaction on every payload.
//
// Grounded on internal/tasklog/tasklog.go's nil-safe Registry + JSONL
// append shape (there: one file per task ID; here: one rotating file
// per event type), with persistence handed to
// gopkg.in/natefinch/lumberjack.v2 instead of a raw os.OpenFile(O_APPEND)
// since §4.9 requires size-based rotation with a rotation cap the
// teacher's tasklog never implemented.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haricheung/ace/internal/clock"
)

const (
	maxSizeMB    = 2
	maxRotations = 2
)

// Actor identifies who or what caused an event (spec §4.9).
type Actor string

const (
	ActorUser      Actor = "user"
	ActorAssistant Actor = "assistant"
	ActorTool      Actor = "tool"
	ActorSystem    Actor = "system"
)

// Event is one JSONL line. Payload is redacted before it is ever
// written (spec §4.9, §7).
type Event struct {
	ID      string         `json:"id"`
	Ts      string         `json:"ts"`
	Actor   Actor          `json:"actor"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

var redactKey = regexp.MustCompile(`(?i)(password|secret|token|api.?key|credential|authorization)`)

// redact replaces the value of any key matching a credential-like
// pattern with a fixed placeholder, recursing into nested maps (spec
// §7).
func redact(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case redactKey.MatchString(k):
			out[k] = "[REDACTED]"
		case isMap(v):
			out[k] = redact(v.(map[string]any))
		default:
			out[k] = v
		}
	}
	return out
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

var idCounter uint64

// NewMonotonicID mints a lexicographically-sortable ID from the clock's
// current time plus a per-process counter, so concurrent Append calls
// in the same nanosecond still sort correctly (spec §4.9: "id
// (monotonic lexicographic, e.g. ULID)").
func NewMonotonicID(c clock.Clock) string {
	n := atomic.AddUint64(&idCounter, 1)
	return fmt.Sprintf("%020d-%010d", c.Now().UnixNano(), n)
}

// Log is the append-only, per-event-type rotating writer.
type Log struct {
	mu      sync.Mutex
	dir     string
	clock   clock.Clock
	writers map[string]*rotatingWriter
}

// rotatingWriter wraps a lumberjack.Logger for one (eventType, hour)
// bucket; a new bucket (and therefore a new lumberjack.Logger pointed
// at a new filename) is opened whenever the wall-clock hour changes.
type rotatingWriter struct {
	hour   string
	lumber *lumberjack.Logger
}

// New creates a Log that writes JSONL files under dir.
func New(dir string, c clock.Clock) *Log {
	return &Log{dir: dir, clock: c, writers: make(map[string]*rotatingWriter)}
}

func (l *Log) filename(eventType, hour string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl", eventType, hour))
}

func (l *Log) writerFor(eventType string) *rotatingWriter {
	hour := l.clock.Now().UTC().Format("2006010215")
	w, ok := l.writers[eventType]
	if ok && w.hour == hour {
		return w
	}
	if ok {
		_ = w.lumber.Close()
	}
	w = &rotatingWriter{
		hour: hour,
		lumber: &lumberjack.Logger{
			Filename:   l.filename(eventType, hour),
			MaxSize:    maxSizeMB,
			MaxBackups: maxRotations,
			Compress:   false,
		},
	}
	l.writers[eventType] = w
	return w
}

// Append writes one redacted event, required fields populated per spec
// §4.9 (id, ts, actor, type).
func (l *Log) Append(actor Actor, eventType string, payload map[string]any) error {
	ev := Event{
		ID:      NewMonotonicID(l.clock),
		Ts:      l.clock.Now().UTC().Format(time.RFC3339Nano),
		Actor:   actor,
		Type:    eventType,
		Payload: redact(payload),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.writerFor(eventType)
	if _, err := fmt.Fprintf(w.lumber, "%s\n", data); err != nil {
		log.Printf("[EVENTLOG] write error type=%s: %v", eventType, err)
		return err
	}
	return nil
}

// TruncateToLastN rewrites eventType's current-hour file to contain
// only its last n lines, for high-churn event types that would
// otherwise accumulate faster than hourly rotation can bound them
// (spec §4.9).
func (l *Log) TruncateToLastN(eventType string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.writerFor(eventType)
	path := w.lumber.Filename

	lines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(lines) <= n {
		return nil
	}
	tail := lines[len(lines)-n:]

	if err := w.lumber.Close(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	writer := bufio.NewWriter(f)
	for _, line := range tail {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// ReadLastN reads the tail of eventType's current-hour file.
func (l *Log) ReadLastN(eventType string, n int) ([]Event, error) {
	l.mu.Lock()
	path := l.writerFor(eventType).lumber.Filename
	l.mu.Unlock()

	lines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]Event, 0, len(lines))
	for _, line := range lines {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Close flushes and closes every open writer.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, w := range l.writers {
		if err := w.lumber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
