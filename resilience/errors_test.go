package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"circuit open", &CircuitOpenError{Unit: "db"}, ErrCircuitOpen},
		{"bulkhead overflow", &BulkheadOverflowError{Unit: "api"}, ErrBulkheadOverflow},
		{"rate limited", &RateLimitedError{Key: "tenant-1"}, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false, want true", tt.err)
			}
		})
	}
}

func TestTypedErrors_CarryIdentity(t *testing.T) {
	var coe *CircuitOpenError
	if err := error(&CircuitOpenError{Unit: "payments"}); !errors.As(err, &coe) || coe.Unit != "payments" {
		t.Errorf("errors.As = %v, Unit = %q, want payments", coe != nil, coe.Unit)
	}

	var boe *BulkheadOverflowError
	if err := error(&BulkheadOverflowError{Unit: "search"}); !errors.As(err, &boe) || boe.Unit != "search" {
		t.Errorf("errors.As = %v, Unit = %q, want search", boe != nil, boe.Unit)
	}

	var rle *RateLimitedError
	if err := error(&RateLimitedError{Key: "ip:10.0.0.1"}); !errors.As(err, &rle) || rle.Key != "ip:10.0.0.1" {
		t.Errorf("errors.As = %v, Key = %q, want ip:10.0.0.1", rle != nil, rle.Key)
	}
}

func TestOperationError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&OperationError{Unit: "db", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	wrapped := fmt.Errorf("handler: %w", err)

	var oe *OperationError
	if !errors.As(wrapped, &oe) {
		t.Fatal("errors.As(wrapped, *OperationError) = false, want true")
	}
	if oe.Unit != "db" {
		t.Errorf("Unit = %q, want db", oe.Unit)
	}
}

func TestErrors_Messages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&CircuitOpenError{Unit: "db"}, `resilience: circuit breaker "db" is open`},
		{&BulkheadOverflowError{Unit: "api"}, `resilience: bulkhead "api" at capacity`},
		{&RateLimitedError{Key: "k"}, `resilience: rate limit exceeded for key "k"`},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
