package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestChecker_Run(t *testing.T) {
	t.Parallel()

	checker := NewChecker(Checks{
		"redis": func(context.Context) error { return nil },
		"db":    func(context.Context) error { return errors.New("connection refused") },
	}, time.Second, logging.Discard())

	assert.Equal(t, map[string]bool{"redis": true, "db": false}, checker.Run(context.Background()))
}

func TestChecker_Timeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	checker := NewChecker(Checks{
		"slow": func(context.Context) error { <-block; return nil },
		"fast": func(context.Context) error { return nil },
	}, 50*time.Millisecond, logging.Discard())

	start := time.Now()
	got := checker.Run(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, map[string]bool{"slow": false, "fast": true}, got)
}

func TestChecker_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NewChecker(nil, 0, logging.Discard()).Run(context.Background()))
}
