// Package seed configures the process-wide random sources used by the
// dataset, the predictor and the training loop.
//
// Everything mutates global state. Call it once from main, before any
// dataset is shuffled or any gomlx context is created.
package seed

import (
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Disabled is the sentinel seed meaning "do not seed anything".
const Disabled int64 = -1

// Environment variables set when seeding is active.
const (
	HashSeedEnv        = "PITCHLEN_HASHSEED"
	CublasWorkspaceEnv = "CUBLAS_WORKSPACE_CONFIG"
	XLAFlagsEnv        = "XLA_FLAGS"

	cublasWorkspace  = ":4096:8"
	xlaDeterministic = "--xla_gpu_deterministic_ops=true"
)

var (
	mu      sync.Mutex
	current = Disabled
	rng     = rand.New(rand.NewSource(rand.Int63()))
)

// Everything seeds the process RNG, exports the determinism environment for
// accelerator backends and records the seed for gomlx contexts. Seeding with
// Disabled is a no-op.
func Everything(s int64) {
	if s == Disabled {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	current = s
	rng = rand.New(rand.NewSource(s))

	os.Setenv(HashSeedEnv, strconv.FormatInt(s, 10))
	os.Setenv(CublasWorkspaceEnv, cublasWorkspace)
	flags := os.Getenv(XLAFlagsEnv)
	if !strings.Contains(flags, xlaDeterministic) {
		os.Setenv(XLAFlagsEnv, strings.TrimSpace(flags+" "+xlaDeterministic))
	}
}

// Current returns the active seed, and false if Everything was never called
// with a real seed.
func Current() (int64, bool) {
	mu.Lock()
	defer mu.Unlock()
	return current, current != Disabled
}

// Int63 draws from the process RNG.
func Int63() int64 {
	mu.Lock()
	defer mu.Unlock()
	return rng.Int63()
}

// Float32 draws from the process RNG.
func Float32() float32 {
	mu.Lock()
	defer mu.Unlock()
	return rng.Float32()
}

// NormFloat32 draws a standard normal value from the process RNG.
func NormFloat32() float32 {
	mu.Lock()
	defer mu.Unlock()
	return float32(rng.NormFloat64())
}

// Shuffle permutes n elements with the process RNG.
func Shuffle(n int, swap func(i, j int)) {
	mu.Lock()
	defer mu.Unlock()
	rng.Shuffle(n, swap)
}

// Context applies the active seed to the gomlx context RNG, so dropout masks
// and random initializers repeat across runs. It returns ctx unchanged when
// seeding is disabled.
func Context(ctx *context.Context) *context.Context {
	if s, ok := Current(); ok {
		ctx.RngStateFromSeed(s)
	}
	return ctx
}
