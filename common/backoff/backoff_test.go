// common/backoff/backoff_test.go
package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YaganovValera/dataset-api/common/backoff"
	"github.com/YaganovValera/dataset-api/common/logger"
)

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	cfg := backoff.Config{MaxElapsedTime: time.Second}
	called := 0
	err := backoff.Execute(context.Background(), cfg, logger.NewNop(), "test", func(ctx context.Context) error {
		called++
		return nil
	})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if called != 1 {
		t.Errorf("expected 1 attempt, got %d", called)
	}
}

func TestExecute_EventualSuccess(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 5 * time.Millisecond, Multiplier: 1, MaxElapsedTime: time.Second}
	attemptsBeforeSuccess := 3
	called := 0
	err := backoff.Execute(context.Background(), cfg, logger.NewNop(), "test", func(ctx context.Context) error {
		called++
		if called < attemptsBeforeSuccess {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if called != attemptsBeforeSuccess {
		t.Errorf("expected %d attempts, got %d", attemptsBeforeSuccess, called)
	}
}

func TestExecute_MaxRetriesExceeded(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 5 * time.Millisecond, Multiplier: 1, MaxElapsedTime: 50 * time.Millisecond}
	called := 0
	err := backoff.Execute(context.Background(), cfg, logger.NewNop(), "test", func(ctx context.Context) error {
		called++
		return errors.New("always fail")
	})
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if maxErr.Attempts != called {
		t.Errorf("attempts mismatch: ErrMaxRetries.Attempts=%d, actual=%d", maxErr.Attempts, called)
	}
	if maxErr.Op != "test" {
		t.Errorf("Op = %q", maxErr.Op)
	}
}

// Permanent-ошибка не ретраится, а исходная причина доступна через errors.Is.
func TestExecute_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad input")
	called := 0
	err := backoff.Execute(context.Background(), backoff.Config{InitialInterval: time.Millisecond}, logger.NewNop(), "test",
		func(ctx context.Context) error {
			called++
			return backoff.Permanent(sentinel)
		})
	if called != 1 {
		t.Errorf("expected 1 attempt, got %d", called)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel in chain, got %v", err)
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := backoff.Execute(ctx, backoff.Config{InitialInterval: time.Millisecond}, logger.NewNop(), "test",
		func(ctx context.Context) error { return errors.New("fail") })
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     backoff.Config
		wantErr bool
	}{
		{"zero", backoff.Config{}, false},
		{"jitter too big", backoff.Config{RandomizationFactor: 1.5}, true},
		{"multiplier below one", backoff.Config{Multiplier: 0.5}, true},
		{"negative elapsed", backoff.Config{MaxElapsedTime: -time.Second}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.cfg.Validate(); (err != nil) != c.wantErr {
				t.Errorf("Validate() = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}
