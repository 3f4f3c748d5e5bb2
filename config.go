package mercury

import "runtime"

// StackSizes records the per-class stack byte sizes recognized by the
// environment/config surface. Allocation mechanics for these stacks
// are out of scope (see spec Non-goals); the core only ever threads
// the configured sizes through to Context for profiling/diagnostic
// purposes.
type StackSizes struct {
	Det             int
	Nondet          int
	SmallDet        int
	SmallNondet     int
	GeneratorDet    int
	GeneratorNondet int
	Trail           int
	Gen             int
	Cut             int
	Pneg            int
}

// DefaultStackSizes mirrors the original runtime's defaults: regular
// stacks an order of magnitude larger than their "small" counterparts.
func DefaultStackSizes() StackSizes {
	return StackSizes{
		Det:             1 << 20,
		Nondet:          1 << 20,
		SmallDet:        1 << 14,
		SmallNondet:     1 << 14,
		GeneratorDet:    1 << 18,
		GeneratorNondet: 1 << 18,
		Trail:           1 << 16,
		Gen:             1 << 16,
		Cut:             1 << 14,
		Pneg:            1 << 14,
	}
}

// Config holds every knob recognized by the runtime's environment/config
// surface (spec §6). Follows the struct-plus-functional-options shape
// used throughout the corpus's worker-pool configuration (Config /
// DefaultConfig / With* options).
type Config struct {
	NumEngines             int
	StackSizes             StackSizes
	DequeLengthFactor      int
	MaxOutstandingContexts int
	EnablePinning          bool
	EnableProfiling        bool
	ProfilePath            string
}

// DefaultConfig returns sensible defaults: one engine per online CPU,
// pinning enabled, profiling disabled, an unbounded-in-practice
// outstanding context cap.
func DefaultConfig() Config {
	return Config{
		NumEngines:             runtime.NumCPU(),
		StackSizes:             DefaultStackSizes(),
		DequeLengthFactor:      8,
		MaxOutstandingContexts: 1 << 20,
		EnablePinning:          true,
		EnableProfiling:        false,
		ProfilePath:            "parallel_execution_profile.txt",
	}
}

// Option mutates a Config at construction time.
type Option func(*Config)

func WithEngines(n int) Option {
	return func(c *Config) { c.NumEngines = n }
}

func WithStackSizes(s StackSizes) Option {
	return func(c *Config) { c.StackSizes = s }
}

func WithDequeLengthFactor(f int) Option {
	return func(c *Config) { c.DequeLengthFactor = f }
}

func WithMaxOutstandingContexts(n int) Option {
	return func(c *Config) { c.MaxOutstandingContexts = n }
}

func WithPinning(enabled bool) Option {
	return func(c *Config) { c.EnablePinning = enabled }
}

func WithProfiling(enabled bool, path string) Option {
	return func(c *Config) {
		c.EnableProfiling = enabled
		if path != "" {
			c.ProfilePath = path
		}
	}
}
