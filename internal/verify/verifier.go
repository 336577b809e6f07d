// File: internal/verify/verifier.go
// Brief: Independent structural verification of reconciled secrets.

// Package verify re-reads cluster state after reconciliation and confirms
// every declared secret exists with exactly the declared key set and values
// that satisfy their rules. Checks run on the decoded values in memory; no
// report or log line ever carries a value. Secrets routed through the
// external backend that have not materialized yet are Pending, not failed,
// within a grace window.
package verify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/example/secretctl/internal/externalbackend"
	"github.com/example/secretctl/internal/kube"
	"github.com/example/secretctl/internal/reconcile"
	"github.com/example/secretctl/internal/schema"
)

// Status is the verification outcome for one secret.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	// StatusPending means the secret is externally backed and not yet
	// materialized, within the grace window.
	StatusPending Status = "pending"
)

// Report is the verification result for one declared secret.
type Report struct {
	Secret       string
	ExpectedKeys []string
	PresentKeys  []string
	MissingKeys  []string
	ExtraKeys    []string
	KeysValid    bool
	Status       Status
	// Reasons describe each failure without disclosing any value.
	Reasons []string
}

// DefaultGraceWindow bounds how long a not-yet-materialized external secret
// counts as Pending before it becomes a failure.
const DefaultGraceWindow = 2 * time.Minute

// Verifier re-reads the cluster and checks structural correctness.
type Verifier struct {
	client      *kube.Client
	namespace   string
	graceWindow time.Duration
	log         logr.Logger

	now func() time.Time
}

// Options configure a Verifier.
type Options struct {
	Namespace   string
	GraceWindow time.Duration
	Log         logr.Logger
}

// New builds a Verifier.
func New(client *kube.Client, opts Options) *Verifier {
	grace := opts.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Verifier{
		client:      client,
		namespace:   opts.Namespace,
		graceWindow: grace,
		log:         opts.Log,
		now:         time.Now,
	}
}

// Verify produces one report per declared secret. The returned error is
// non-nil only for run-fatal failures (connectivity, permissions).
func (v *Verifier) Verify(ctx context.Context, catalog *schema.Catalog) ([]Report, error) {
	reports := make([]Report, 0, len(catalog.Secrets))
	for _, spec := range catalog.Secrets {
		report, err := v.verifyOne(ctx, spec)
		if err != nil {
			if fatal := reconcile.ClassifyFatal(err); fatal != nil {
				return nil, fatal
			}
			report = Report{
				Secret:       spec.Name,
				ExpectedKeys: spec.KeyNames(),
				Status:       StatusFail,
				Reasons:      []string{fmt.Sprintf("verify: %v", err)},
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (v *Verifier) verifyOne(ctx context.Context, spec schema.SecretSpec) (Report, error) {
	report := Report{Secret: spec.Name, ExpectedKeys: spec.KeyNames()}

	secret, err := v.client.Clientset.CoreV1().Secrets(v.namespace).Get(ctx, spec.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if pending, reason := v.pendingExternal(ctx, spec.Name); pending {
			report.Status = StatusPending
			report.Reasons = []string{reason}
			return report, nil
		}
		report.Status = StatusFail
		report.Reasons = []string{"secret not found"}
		return report, nil
	}
	if err != nil {
		return report, err
	}

	present := make([]string, 0, len(secret.Data))
	for key := range secret.Data {
		present = append(present, key)
	}
	sort.Strings(present)
	report.PresentKeys = present

	expected := map[string]struct{}{}
	for _, key := range report.ExpectedKeys {
		expected[key] = struct{}{}
		if _, ok := secret.Data[key]; !ok {
			report.MissingKeys = append(report.MissingKeys, key)
		}
	}
	for _, key := range present {
		if _, ok := expected[key]; !ok {
			report.ExtraKeys = append(report.ExtraKeys, key)
		}
	}
	for _, key := range report.MissingKeys {
		report.Reasons = append(report.Reasons, fmt.Sprintf("key %q is missing", key))
	}
	for _, key := range report.ExtraKeys {
		report.Reasons = append(report.Reasons, fmt.Sprintf("key %q is not declared", key))
	}

	report.KeysValid = len(report.MissingKeys) == 0 && len(report.ExtraKeys) == 0
	for _, key := range spec.Keys {
		value, ok := secret.Data[key.Name]
		if !ok {
			continue
		}
		if reason := checkRule(key, value); reason != "" {
			report.KeysValid = false
			report.Reasons = append(report.Reasons, fmt.Sprintf("key %q %s", key.Name, reason))
		}
	}

	if report.KeysValid {
		report.Status = StatusPass
	} else {
		report.Status = StatusFail
	}
	return report, nil
}

// checkRule evaluates a key's rule against the decoded value and describes a
// failure without including the value.
func checkRule(key schema.KeySpec, value []byte) string {
	if len(value) == 0 {
		return "is empty"
	}
	if key.Rule.MinLength > 0 && len(value) < key.Rule.MinLength {
		return fmt.Sprintf("is shorter than minLength=%d", key.Rule.MinLength)
	}
	if key.Rule.Pattern != "" {
		if !key.Rule.Matches(value) {
			return fmt.Sprintf("does not match pattern %q", key.Rule.Pattern)
		}
	}
	return ""
}

// pendingExternal reports whether a missing secret is explained by a
// reference resource that has not materialized yet.
func (v *Verifier) pendingExternal(ctx context.Context, name string) (bool, string) {
	es, err := v.client.Dynamic.Resource(externalbackend.ExternalSecretGVR()).
		Namespace(v.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return false, ""
	}
	created := es.GetCreationTimestamp().Time
	age := v.now().Sub(created)
	if created.IsZero() || age <= v.graceWindow {
		return true, "awaiting external store synchronization"
	}
	return false, ""
}

// Worst returns the most severe status across reports: Fail over Pending
// over Pass.
func Worst(reports []Report) Status {
	worst := StatusPass
	for _, r := range reports {
		switch r.Status {
		case StatusFail:
			return StatusFail
		case StatusPending:
			worst = StatusPending
		}
	}
	return worst
}
