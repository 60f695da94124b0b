// Package retry runs an operation with bounded attempts and exponential
// backoff. The policy watcher uses it to ride out transient read failures
// when an editor rewrites the document file in several steps.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
)

// Operation is the retried unit of work.
type Operation func(ctx context.Context) error

// Config controls the retry schedule.
type Config struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is the base wait between attempts.
	Delay time.Duration
	// MaxDelay caps the backed-off wait. Zero means uncapped.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay per attempt. Values below 1 are
	// treated as 1 (constant delay).
	BackoffFactor float64
	// Jitter in [0,1] randomizes each wait by up to that fraction.
	Jitter float64
	// Name labels log lines for this operation.
	Name string
}

// Helper executes operations under a retry schedule.
type Helper struct {
	log strandlog.Logger
	rng *rand.Rand
}

// NewHelper creates a retry helper. The logger is required.
func NewHelper(log strandlog.Logger) *Helper {
	if log == nil {
		panic("retry.NewHelper requires a non-nil logger")
	}
	return &Helper{
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs op until it succeeds, the attempts run out, or the context ends.
// The last error is returned when every attempt fails.
func (h *Helper) Do(ctx context.Context, cfg Config, op Operation) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.BackoffFactor < 1.0 {
		cfg.BackoffFactor = 1.0
	}
	if cfg.Jitter < 0.0 {
		cfg.Jitter = 0.0
	} else if cfg.Jitter > 1.0 {
		cfg.Jitter = 1.0
	}

	prefix := ""
	if cfg.Name != "" {
		prefix = cfg.Name + ": "
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return err
			}
			return fmt.Errorf("canceled after %d attempts: %w", attempt-1, lastErr)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				h.log.Infof("%ssucceeded on attempt %d/%d", prefix, attempt, cfg.Attempts)
			}
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		wait := h.wait(cfg, attempt)
		h.log.Warnf("%sattempt %d/%d failed (retrying in %v): %v",
			prefix, attempt, cfg.Attempts, wait.Truncate(time.Millisecond), lastErr)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("canceled during retry delay after attempt %d: %w", attempt, lastErr)
		}
	}

	h.log.Errorf("%sfailed after %d attempts: %v", prefix, cfg.Attempts, lastErr)
	return lastErr
}

// wait computes the backed-off, jittered delay before the next attempt.
func (h *Helper) wait(cfg Config, attempt int) time.Duration {
	base := float64(cfg.Delay)
	if cfg.BackoffFactor > 1.0 {
		base *= math.Pow(cfg.BackoffFactor, float64(attempt-1))
	}
	if base > float64(math.MaxInt64) {
		base = float64(math.MaxInt64)
	}
	wait := time.Duration(base)

	if cfg.Jitter > 0.0 {
		factor := cfg.Jitter * (h.rng.Float64()*2.0 - 1.0)
		wait += time.Duration(float64(wait) * factor)
		if wait < 0 {
			wait = 0
		}
	}
	if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
		wait = cfg.MaxDelay
	}
	return wait
}
