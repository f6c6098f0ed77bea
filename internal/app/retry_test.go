package app

import (
	"errors"
	"fmt"
	"testing"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

func TestWithRetry(t *testing.T) {
	transient := errors.New("connection reset")

	tests := []struct {
		name      string
		attempts  uint
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", 3, 0, nil, 1, nil},
		{"recovers from transient failure", 3, 2, transient, 3, nil},
		{"gives up after attempts", 2, 5, transient, 2, transient},
		{"zero attempts runs once", 0, 5, transient, 1, transient},
		{"permanent failure is not retried", 5, 5, fmt.Errorf("x: %w", model.ErrBackupNotFound), 1, model.ErrBackupNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := retryPolicy{attempts: tt.attempts, logger: guardian.NewNopLogger()}
			calls := 0
			err := p.withRetry("test", func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("withRetry() error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}
