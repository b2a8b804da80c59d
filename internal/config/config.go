// Package config loads the ACE core's process-wide Identity/Config
// (spec §3, §6): thresholds, weights and bypass mode, following the
// teacher's .env-then-tiered-env-var loading pattern
// (internal/llm/client.go NewTier, cmd/agsh/main.go godotenv.Load).
// The hard-ceiling / deliberate-minimum pattern sets are static tables
// in internal/classifier and are not loaded here.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/haricheung/ace/internal/aceerr"
)

// Weights are the scorer's R/P/B blend (spec §4.2); must sum to 1±1e-6.
type Weights struct {
	R float64
	P float64
	B float64
}

// BypassMode is the operator bypass switch (spec §4.8).
type BypassMode string

const (
	BypassOff      BypassMode = "off"
	BypassLogOnly  BypassMode = "log-only"
	BypassDisabled BypassMode = "disabled"
)

// Config is the process-wide ACE identity loaded once at startup.
type Config struct {
	Enabled              bool
	BypassMode           BypassMode
	ActThreshold         float64
	EscalateThreshold    float64
	Weights              Weights
	DecayLambda          float64
	DecayBaseline        float64
	AuditIntervalDays    int
	RubberStampThreshold int
	RateLimitCapacity    int
	RateLimitRefillPerS  int
	Debug                bool
	PersonalityDir       string
}

// Floors enforced at load time (spec §3): attempts to configure
// outside these bounds return ErrInvalidThreshold rather than
// silently clamping.
const (
	ActThresholdFloor  = 0.60
	PrecedentCeiling   = 0.95
	weightSumTolerance = 1e-6
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, aceerr.Wrap(aceerr.KindInvalidThreshold, "", "parse "+key, err)
	}
	return f, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, aceerr.Wrap(aceerr.KindInvalidThreshold, "", "parse "+key, err)
	}
	return n, nil
}

// Load reads the ACE_* environment (after a best-effort .env load,
// matching cmd/agsh/main.go's godotenv.Load(".env") call) and
// validates the load-time floor/ceiling invariants.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	c := &Config{
		Enabled:        getEnv("ACE_ENABLED", "1") == "1",
		BypassMode:     BypassMode(getEnv("ACE_BYPASS_MODE", string(BypassOff))),
		PersonalityDir: getEnv("ACE_PERSONALITY_DIR", "."),
		Debug:          getEnv("ACE_DEBUG", "") == "1",
	}

	var err error
	if c.ActThreshold, err = getFloat("ACE_ACT_THRESHOLD", 0.70); err != nil {
		return nil, err
	}
	if c.EscalateThreshold, err = getFloat("ACE_ESCALATE_THRESHOLD", 0.40); err != nil {
		return nil, err
	}
	if c.Weights.R, err = getFloat("ACE_WEIGHT_R", 0.30); err != nil {
		return nil, err
	}
	if c.Weights.P, err = getFloat("ACE_WEIGHT_P", 0.40); err != nil {
		return nil, err
	}
	if c.Weights.B, err = getFloat("ACE_WEIGHT_B", 0.30); err != nil {
		return nil, err
	}
	if c.DecayLambda, err = getFloat("ACE_DECAY_LAMBDA", 0.01); err != nil {
		return nil, err
	}
	if c.DecayBaseline, err = getFloat("ACE_DECAY_BASELINE", 0.20); err != nil {
		return nil, err
	}
	if c.AuditIntervalDays, err = getInt("ACE_AUDIT_INTERVAL_DAYS", 7); err != nil {
		return nil, err
	}
	if c.RubberStampThreshold, err = getInt("ACE_RUBBER_STAMP_THRESHOLD", 10); err != nil {
		return nil, err
	}
	if c.RateLimitCapacity, err = getInt("ACE_RATE_LIMIT_CAPACITY", 100); err != nil {
		return nil, err
	}
	if c.RateLimitRefillPerS, err = getInt("ACE_RATE_LIMIT_REFILL_PER_SEC", 10); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate enforces the §3 floor/ceiling invariants.
func (c *Config) Validate() error {
	if c.ActThreshold < ActThresholdFloor {
		return aceerr.New(aceerr.KindInvalidThreshold, "act threshold below floor 0.60")
	}
	if c.EscalateThreshold < 0 || c.EscalateThreshold >= c.ActThreshold {
		return aceerr.New(aceerr.KindInvalidThreshold, "escalate threshold must be below act threshold")
	}
	sum := c.Weights.R + c.Weights.P + c.Weights.B
	if sum < 1-weightSumTolerance || sum > 1+weightSumTolerance {
		return aceerr.New(aceerr.KindInvalidThreshold, "scorer weights must sum to 1")
	}
	return nil
}
