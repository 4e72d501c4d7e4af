// Package health runs named liveness checks against the backing stores.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a whole Run.
const DefaultTimeout = 2 * time.Second

// CheckFunc reports a dependency as alive by returning nil.
type CheckFunc func(ctx context.Context) error

// Checks is a set of named checks.
type Checks map[string]CheckFunc

// Checker runs checks in parallel under a shared timeout.
type Checker struct {
	checks  Checks
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewChecker returns a Checker; a non-positive timeout means DefaultTimeout.
func NewChecker(checks Checks, timeout time.Duration, log logrus.FieldLogger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{checks: checks, timeout: timeout, log: log}
}

// Run executes every check and reports which ones passed. A check that
// does not return before the timeout counts as failed.
func (c *Checker) Run(ctx context.Context) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]bool, len(c.checks))
	)

	for name, check := range c.checks {
		mu.Lock()
		results[name] = false
		mu.Unlock()

		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			done := make(chan error, 1)
			go func() { done <- check(ctx) }()

			var err error
			select {
			case err = <-done:
			case <-ctx.Done():
				err = ctx.Err()
			}

			if err != nil {
				c.log.WithError(err).WithField("check", name).Warn("health check failed")
				return
			}

			mu.Lock()
			results[name] = true
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}
