package retry

import (
	"errors"
	"testing"
	"time"
)

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	cfg := Config{Attempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond}
	calls := 0
	err := Do(cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection-refused: dial tcp")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientPropagatesImmediately(t *testing.T) {
	cfg := Config{Attempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond}
	calls := 0
	err := Do(cfg, func() error {
		calls++
		return errors.New("syntax error near SELECT")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for non-transient error, got %d", calls)
	}
}

func TestDo_ExhaustsAttemptsAndPropagatesOriginal(t *testing.T) {
	cfg := Config{Attempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond}
	calls := 0
	sentinel := errors.New("deadlock detected")
	err := Do(cfg, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestIsTransient_CaseInsensitive(t *testing.T) {
	cases := []struct {
		msg       string
		transient bool
	}{
		{"Connection-Refused while dialing", true},
		{"operation TIMEOUT exceeded", true},
		{"Host-Not-Found for db.internal", true},
		{"TOO-MANY-CONNECTIONS", true},
		{"permission denied for table events", false},
		{"invalid input syntax for type integer", false},
	}
	for _, c := range cases {
		if got := IsTransient(errors.New(c.msg)); got != c.transient {
			t.Errorf("IsTransient(%q) = %v, want %v", c.msg, got, c.transient)
		}
	}
}
