// Package config holds every tunable parameter named in the QuDAG
// specification: QR-Avalanche thresholds, tip selection, circuit/packet
// sizing, and dark-resolver cache/rate-limit settings. It mirrors the
// teacher's config.Builder shape: a validated struct plus a fluent
// constructor, with Mainnet/Testnet/Local presets.
package config

import (
	"fmt"
	"time"
)

// NetworkType selects a preset parameter bundle.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Local   NetworkType = "local"
)

// Config holds every parameter named in spec.md.
type Config struct {
	// QR-Avalanche (§4.4)
	K                 int           // sample size
	Alpha             float64       // quorum ratio
	Beta              uint32        // consecutive successes to finalize
	FinalityThreshold float64       // confidence gate at finality
	QueryTimeout      time.Duration
	MaxConcurrentRounds int
	FinalityTimeout   time.Duration // vertex marked Stuck after this with no quorum
	ConfidenceLearningRate float64  // EMA rate toward sampled ratio

	// Vertex store (§4.2, §5)
	MaxParents  int
	MaxPending  int
	PendingTTL  time.Duration
	MaxVertices int
	PruneDepth  int // vertices older than this many blocks behind the finalized frontier are dropped

	// Tip selection (§4.5)
	TipAgeDecay float64

	// Circuit builder / onion packets (§4.6, §4.7)
	DefaultHops   int
	MinHops       int
	MaxHops       int
	CircuitTTL    time.Duration
	MaxCells      uint64
	MaxCircuits   int
	PacketSize    int
	DelayMax      time.Duration
	CoverTrafficRate time.Duration // interval between cover cells when idle
	ReplayWindow  int
	HopRetries    int

	// Dark resolver (§4.8)
	ResolverCacheSize    int64
	ResolverCacheTTL     time.Duration
	ShadowMaxTTL         time.Duration
	ResolveRateLimit     int           // queries
	ResolveRateWindow    time.Duration // rolling window

	NetworkLatency time.Duration
}

// Default returns spec.md's stated defaults.
func Default() Config {
	return Config{
		K:                      20,
		Alpha:                  0.8,
		Beta:                   15,
		FinalityThreshold:      0.95,
		QueryTimeout:           250 * time.Millisecond,
		MaxConcurrentRounds:    1000,
		FinalityTimeout:        60 * time.Second,
		ConfidenceLearningRate: 0.1,

		MaxParents:  8,
		MaxPending:  1024,
		PendingTTL:  30 * time.Second,
		MaxVertices: 1_000_000,
		PruneDepth:  10_000,

		TipAgeDecay: 0.001,

		DefaultHops:      3,
		MinHops:          3,
		MaxHops:          7,
		CircuitTTL:       10 * time.Minute,
		MaxCells:         10_000,
		MaxCircuits:      1_000,
		PacketSize:       1280,
		DelayMax:         5 * time.Millisecond,
		CoverTrafficRate: 100 * time.Millisecond,
		ReplayWindow:     4096,
		HopRetries:       3,

		ResolverCacheSize: 10_000,
		ResolverCacheTTL:  time.Hour,
		ShadowMaxTTL:      24 * time.Hour,
		ResolveRateLimit:  60,
		ResolveRateWindow: time.Minute,
	}
}

var (
	MainnetConfig = Default()
	TestnetConfig = func() Config {
		c := Default()
		c.K, c.Alpha, c.Beta = 10, 0.7, 6
		c.QueryTimeout = 500 * time.Millisecond
		return c
	}()
	LocalConfig = func() Config {
		c := Default()
		c.K, c.Alpha, c.Beta = 3, 0.8, 3
		c.QueryTimeout = 100 * time.Millisecond
		c.FinalityTimeout = 5 * time.Second
		return c
	}()
)

// Validate checks the invariants the QR-Avalanche engine and circuit
// builder rely on.
func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("K must be at least 1, got %d", c.K)
	}
	if c.Alpha <= 0.5 || c.Alpha > 1 {
		return fmt.Errorf("Alpha must be in (0.5, 1], got %f", c.Alpha)
	}
	if c.Beta < 1 {
		return fmt.Errorf("Beta must be at least 1, got %d", c.Beta)
	}
	if c.MaxParents < 1 {
		return fmt.Errorf("MaxParents must be at least 1, got %d", c.MaxParents)
	}
	if c.MinHops < 1 || c.MaxHops < c.MinHops {
		return fmt.Errorf("invalid hop bounds [%d,%d]", c.MinHops, c.MaxHops)
	}
	if c.DefaultHops < c.MinHops || c.DefaultHops > c.MaxHops {
		return fmt.Errorf("DefaultHops %d outside [%d,%d]", c.DefaultHops, c.MinHops, c.MaxHops)
	}
	if c.PacketSize <= 33 {
		return fmt.Errorf("PacketSize must exceed the 33-byte header+MAC overhead, got %d", c.PacketSize)
	}
	return nil
}

// AlphaCount returns the quorum threshold scaled to an available peer
// count n < K, per spec.md §4.4's boundary behavior: ceil(alpha*n).
func (c Config) AlphaCount(n int) int {
	if n >= c.K {
		n = c.K
	}
	need := int(c.Alpha * float64(n))
	if float64(need) < c.Alpha*float64(n) {
		need++
	}
	if need < 1 {
		need = 1
	}
	return need
}
