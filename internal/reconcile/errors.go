// File: internal/reconcile/errors.go
// Brief: Error taxonomy for the mutation phase.

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ConnectivityError means the cluster could not be reached. It aborts the
// whole run; no partial-success claim is made.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cluster unreachable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// PermissionError means the API server rejected our credentials or RBAC
// denied the operation. Fatal for the run.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("insufficient permissions: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// PartialFailureError surfaces an itemized list of secrets whose
// reconciliation or verification failed while others succeeded.
type PartialFailureError struct {
	Failures []Result
}

func (e *PartialFailureError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "some secrets failed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d secret(s) failed:\n", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "- %s: %v\n", f.Secret, f.Err)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ClassifyFatal wraps errors that must abort the whole run. It returns nil
// for errors that stay isolated to a single secret.
func ClassifyFatal(err error) error {
	if err == nil {
		return nil
	}
	var connErr *ConnectivityError
	var permErr *PermissionError
	if errors.As(err, &connErr) || errors.As(err, &permErr) {
		return err
	}
	if apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err) {
		return &PermissionError{Err: err}
	}
	if apierrors.IsServiceUnavailable(err) {
		return &ConnectivityError{Err: err}
	}
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		// Any other API status stays per-secret.
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	// Transport-level failures mean the cluster is unreachable: DNS, refused
	// connections, TLS handshakes. They surface as net or url errors.
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &ConnectivityError{Err: err}
	}
	// Everything else is an internal failure scoped to one secret.
	return nil
}

// retryableConflict reports whether the error is worth a re-fetch and retry
// under optimistic concurrency.
func retryableConflict(err error) bool {
	return apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err) ||
		apierrors.IsServerTimeout(err) || apierrors.IsTooManyRequests(err)
}
