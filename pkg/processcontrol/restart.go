package processcontrol

import (
	"math"
	"time"
)

// RestartPolicy says whether the supervisor restarts a process after it exits
type RestartPolicy string

const (
	RestartAlways RestartPolicy = "always"
	RestartNever  RestartPolicy = "never"
)

const (
	DefaultBackoffRate = 1.5
	DefaultMaxBackoff  = 15 * time.Second
	DefaultResetAfter  = 30 * time.Second
	DefaultMaxRestarts = 16
	DefaultMinUptime   = 1 * time.Second
)

// RestartConfig describes the delays the supervisor applies between restarts.
// When ExpBackoffBase is set it takes precedence over RestartDelay.
type RestartConfig struct {
	RestartDelay   time.Duration `yaml:"restart_delay,omitempty"`
	ExpBackoffBase time.Duration `yaml:"exp_backoff_base,omitempty"`
	BackoffRate    float64       `yaml:"backoff_rate,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`

	// ResetAfter is the uptime after which the backoff sequence starts over
	ResetAfter time.Duration `yaml:"reset_after,omitempty"`

	// MaxRestarts consecutive unstable restarts before the supervisor gives up.
	// A run shorter than MinUptime counts as unstable.
	MaxRestarts int           `yaml:"max_restarts,omitempty"`
	MinUptime   time.Duration `yaml:"min_uptime,omitempty"`
}

// NewRestartConfig fills the fixed parts of the policy with supervisor defaults
func NewRestartConfig(restartDelay, expBackoffBase time.Duration) RestartConfig {
	return RestartConfig{
		RestartDelay:   restartDelay,
		ExpBackoffBase: expBackoffBase,
		BackoffRate:    DefaultBackoffRate,
		MaxBackoff:     DefaultMaxBackoff,
		ResetAfter:     DefaultResetAfter,
		MaxRestarts:    DefaultMaxRestarts,
		MinUptime:      DefaultMinUptime,
	}
}

func (c RestartConfig) UsesExpBackoff() bool {
	return c.ExpBackoffBase > 0
}

// DelayFor returns the delay before restart number attempt (0-based) of a failing streak
func (c RestartConfig) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if !c.UsesExpBackoff() {
		return c.RestartDelay
	}

	rate := c.BackoffRate
	if rate <= 1 {
		rate = DefaultBackoffRate
	}
	maxBackoff := c.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}
	if c.ExpBackoffBase >= maxBackoff {
		return maxBackoff
	}

	delay := float64(c.ExpBackoffBase) * math.Pow(rate, float64(attempt))
	if delay >= float64(maxBackoff) || math.IsInf(delay, 0) {
		return maxBackoff
	}
	return time.Duration(delay).Round(time.Millisecond)
}

// Schedule returns the delays of the first n restarts of a failing streak
func (c RestartConfig) Schedule(n int) []time.Duration {
	if n <= 0 {
		return nil
	}
	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = c.DelayFor(i)
	}
	return delays
}
