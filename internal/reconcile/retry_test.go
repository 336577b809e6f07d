package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	k8sschema "k8s.io/apimachinery/pkg/runtime/schema"
)

func TestBackoffBounds(t *testing.T) {
	// Jitter is +/- 20%, so check the envelope rather than exact values.
	cases := []struct {
		attempt int
		nominal time.Duration
	}{
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1600 * time.Millisecond},
		{5, 3 * time.Second},
		{9, 3 * time.Second},
	}
	for _, c := range cases {
		for i := 0; i < 20; i++ {
			d := backoff(c.attempt)
			low := time.Duration(float64(c.nominal) * 0.8)
			high := time.Duration(float64(c.nominal) * 1.2)
			if d < low || d > high {
				t.Fatalf("attempt %d: %v outside [%v, %v]", c.attempt, d, low, high)
			}
		}
	}
}

func TestWithConflictRetryStopsOnSuccess(t *testing.T) {
	conflict := apierrors.NewConflict(k8sschema.GroupResource{Resource: "secrets"}, "alpha", fmt.Errorf("modified"))
	calls := 0
	err := withConflictRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return conflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithConflictRetryGivesUpAfterBudget(t *testing.T) {
	conflict := apierrors.NewConflict(k8sschema.GroupResource{Resource: "secrets"}, "alpha", fmt.Errorf("modified"))
	calls := 0
	err := withConflictRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return conflict
	})
	if !apierrors.IsConflict(err) {
		t.Fatalf("expected the final conflict surfaced, got %v", err)
	}
	if calls != maxConflictAttempts {
		t.Fatalf("expected %d attempts, got %d", maxConflictAttempts, calls)
	}
}

func TestWithConflictRetryNoRetryForOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := withConflictRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-conflict errors must not be retried, got %d calls", calls)
	}
}

func TestClassifyFatal(t *testing.T) {
	gr := k8sschema.GroupResource{Resource: "secrets"}
	if ClassifyFatal(nil) != nil {
		t.Fatal("nil must stay nil")
	}

	var permErr *PermissionError
	if err := ClassifyFatal(apierrors.NewForbidden(gr, "alpha", fmt.Errorf("rbac"))); !errors.As(err, &permErr) {
		t.Fatalf("forbidden should be a permission error, got %v", err)
	}
	if err := ClassifyFatal(apierrors.NewUnauthorized("token expired")); !errors.As(err, &permErr) {
		t.Fatalf("unauthorized should be a permission error, got %v", err)
	}

	var connErr *ConnectivityError
	if err := ClassifyFatal(apierrors.NewServiceUnavailable("apiserver down")); !errors.As(err, &connErr) {
		t.Fatalf("service unavailable should be a connectivity error, got %v", err)
	}
	dialErr := &url.Error{Op: "Get", URL: "https://10.0.0.1:6443/api", Err: errors.New("connect: connection refused")}
	if err := ClassifyFatal(dialErr); !errors.As(err, &connErr) {
		t.Fatalf("transport error should be a connectivity error, got %v", err)
	}
	if err := ClassifyFatal(fmt.Errorf("list secrets: %w", dialErr)); !errors.As(err, &connErr) {
		t.Fatalf("wrapped transport error should be a connectivity error, got %v", err)
	}

	if err := ClassifyFatal(apierrors.NewConflict(gr, "alpha", fmt.Errorf("modified"))); err != nil {
		t.Fatalf("conflicts stay per-secret, got %v", err)
	}
	if err := ClassifyFatal(context.DeadlineExceeded); err != nil {
		t.Fatalf("per-secret timeout stays per-secret, got %v", err)
	}
	if err := ClassifyFatal(errors.New("secret \"alpha\" key \"token\" has no resolved value")); err != nil {
		t.Fatalf("internal errors stay per-secret, got %v", err)
	}
}
