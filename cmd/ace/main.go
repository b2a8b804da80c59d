// Command ace is the operator-facing CLI surface for the Action
// Confidence Engine (spec §6): score a class, record an outcome,
// print an audit report, and manage the bypass window. It is a thin
// wrapper over the core packages — no long-lived process, no REPL —
// rewired from cmd/agsh/main.go's env/cache-dir/debug-log bootstrap
// into a flag.NewFlagSet-per-subcommand dispatcher, since ACE's CLI is
// a one-shot tool rather than an interactive shell.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/haricheung/ace/internal/bypassaudit"
	"github.com/haricheung/ace/internal/clock"
	"github.com/haricheung/ace/internal/config"
	"github.com/haricheung/ace/internal/eventlog"
	"github.com/haricheung/ace/internal/precedent"
	"github.com/haricheung/ace/internal/scorer"
	"github.com/haricheung/ace/internal/trust"
	"github.com/haricheung/ace/internal/types"
	"github.com/haricheung/ace/internal/ui"
)

// Exit codes (spec §6).
const (
	exitOK         = 0
	exitInvalidArg = 2
	exitRuntime    = 3
	exitEscalation = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = godotenv.Load(".env")

	homeDir, _ := os.UserHomeDir()
	cacheDir := filepath.Join(homeDir, ".cache", "ace")
	_ = os.MkdirAll(cacheDir, 0755)

	if f, err := os.OpenFile(filepath.Join(cacheDir, "debug.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ace <score|record-outcome|audit|bypass> ...")
		return exitInvalidArg
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ace: config:", err)
		return exitRuntime
	}

	c := clock.System{}
	store, err := precedent.New(filepath.Join(cacheDir, "precedent.json"), c, cfg.DecayLambda, cfg.DecayBaseline)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ace: precedent store:", err)
		return exitRuntime
	}
	defer store.Close()

	elog := eventlog.New(cacheDir, c)
	defer elog.Close()

	bypassMgr := bypassaudit.New(c, nil)
	if mode := loadBypassState(cacheDir); mode.mode != bypassaudit.ModeOff {
		bypassMgr.SetBypass(mode.mode, time.Until(mode.until))
	}

	switch args[0] {
	case "score":
		return cmdScore(args[1:], store, cfg, elog)
	case "record-outcome":
		return cmdRecordOutcome(args[1:], store, elog)
	case "audit":
		return cmdAudit(args[1:], bypassMgr)
	case "bypass":
		return cmdBypass(args[1:], bypassMgr, cacheDir)
	default:
		fmt.Fprintf(os.Stderr, "ace: unknown subcommand %q\n", args[0])
		return exitInvalidArg
	}
}

func cmdScore(args []string, store *precedent.Store, cfg *config.Config, elog *eventlog.Log) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON instead of a colored line")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArg
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ace score <class> [--json]")
		return exitInvalidArg
	}
	class := fs.Arg(0)

	desc := types.ActionDescriptor{
		Class:            class,
		MotivationSource: types.MotivationUser,
		TrustSource:      trust.Tag("cli", types.TrustVerified, "operator", nil, time.Now()),
	}
	sc := scorer.Score(desc, store, cfg)

	_ = elog.Append(eventlog.ActorUser, "cli.score", map[string]any{"class": class, "tier": string(sc.Tier), "composite": sc.Composite})

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sc); err != nil {
			fmt.Fprintln(os.Stderr, "ace:", err)
			return exitRuntime
		}
	} else {
		fmt.Println(ui.TierLine(class, sc.Tier, sc.Composite))
		for _, e := range sc.Explanations {
			fmt.Println("  -", e)
		}
	}

	if sc.Tier == types.TierEscalate {
		return exitEscalation
	}
	return exitOK
}

func cmdRecordOutcome(args []string, store *precedent.Store, elog *eventlog.Log) int {
	fs := flag.NewFlagSet("record-outcome", flag.ContinueOnError)
	result := fs.String("result", "", "positive|negative")
	severity := fs.Int("severity", 1, "1|2|3, only meaningful for --result=negative")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArg
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ace record-outcome <class> --result=positive|negative [--severity=1|2|3]")
		return exitInvalidArg
	}
	class := fs.Arg(0)

	var outcome types.Outcome
	switch *result {
	case "positive":
		outcome = types.OutcomePositive
	case "negative":
		outcome = types.OutcomeNegative
	default:
		fmt.Fprintln(os.Stderr, "ace: --result must be positive or negative")
		return exitInvalidArg
	}
	if *severity < 1 || *severity > 3 {
		fmt.Fprintln(os.Stderr, "ace: --severity must be 1, 2, or 3")
		return exitInvalidArg
	}

	res, err := store.RecordOutcome(class, 0, outcome, *severity, "cli", "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "ace:", err)
		return exitRuntime
	}
	if err := store.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, "ace: flush:", err)
		return exitRuntime
	}

	_ = elog.Append(eventlog.ActorUser, "cli.record_outcome", map[string]any{
		"class": class, "result": *result, "oldScore": res.OldScore, "newScore": res.NewScore, "propagated": res.Propagated,
	})

	fmt.Println(ui.OutcomeLine(class, outcome))
	fmt.Printf("  score: %.3f -> %.3f\n", res.OldScore, res.NewScore)
	if len(res.Propagated) > 0 {
		fmt.Println("  propagated to:", res.Propagated)
	}
	return exitOK
}

func cmdAudit(args []string, bypassMgr *bypassaudit.Manager) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	days := fs.Int("days", 7, "reporting window in days (informational only; stats are already window-scoped)")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArg
	}
	_ = days

	report := bypassMgr.GenerateReport()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, "ace:", err)
		return exitRuntime
	}
	if report.DriftWarning {
		return exitEscalation
	}
	return exitOK
}

func cmdBypass(args []string, bypassMgr *bypassaudit.Manager, cacheDir string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ace bypass <set|clear> ...")
		return exitInvalidArg
	}
	switch args[0] {
	case "set":
		fs := flag.NewFlagSet("bypass set", flag.ContinueOnError)
		modeFlag := fs.String("mode", "log-only", "log-only|disabled")
		if err := fs.Parse(args[1:]); err != nil {
			return exitInvalidArg
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: ace bypass set <duration> [--mode=log-only|disabled]")
			return exitInvalidArg
		}
		d, err := bypassaudit.ParseDuration(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "ace:", err)
			return exitInvalidArg
		}
		var mode bypassaudit.Mode
		switch *modeFlag {
		case "log-only":
			mode = bypassaudit.ModeLogOnly
		case "disabled":
			mode = bypassaudit.ModeDisabled
		default:
			fmt.Fprintln(os.Stderr, "ace: --mode must be log-only or disabled")
			return exitInvalidArg
		}
		bypassMgr.SetBypass(mode, d)
		if err := saveBypassState(cacheDir, mode, time.Now().Add(d)); err != nil {
			fmt.Fprintln(os.Stderr, "ace: persist bypass state:", err)
			return exitRuntime
		}
		fmt.Printf("bypass set: mode=%s until=%s\n", mode, time.Now().Add(d).Format(time.RFC3339))
		return exitOK
	case "clear":
		bypassMgr.ClearBypass()
		if err := saveBypassState(cacheDir, bypassaudit.ModeOff, time.Time{}); err != nil {
			fmt.Fprintln(os.Stderr, "ace: persist bypass state:", err)
			return exitRuntime
		}
		fmt.Println("bypass cleared")
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "ace: unknown bypass subcommand %q\n", args[0])
		return exitInvalidArg
	}
}

// bypassState is the small on-disk record that lets each one-shot CLI
// invocation see the bypass window set by a previous invocation,
// since the core's in-memory bypassaudit.Manager does not otherwise
// survive across process runs.
type bypassState struct {
	mode  bypassaudit.Mode
	until time.Time
}

type bypassStateFile struct {
	Mode  string    `json:"mode"`
	Until time.Time `json:"until"`
}

func bypassStatePath(cacheDir string) string {
	return filepath.Join(cacheDir, "bypass_state.json")
}

func loadBypassState(cacheDir string) bypassState {
	data, err := os.ReadFile(bypassStatePath(cacheDir))
	if err != nil {
		return bypassState{mode: bypassaudit.ModeOff}
	}
	var f bypassStateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return bypassState{mode: bypassaudit.ModeOff}
	}
	if f.Until.Before(time.Now()) {
		return bypassState{mode: bypassaudit.ModeOff}
	}
	return bypassState{mode: bypassaudit.Mode(f.Mode), until: f.Until}
}

func saveBypassState(cacheDir string, mode bypassaudit.Mode, until time.Time) error {
	f := bypassStateFile{Mode: string(mode), Until: until}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(bypassStatePath(cacheDir), data, 0644)
}
