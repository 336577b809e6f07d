// File: internal/reconcile/reconciler.go
// Brief: Idempotent create/update/no-op reconciliation of managed Secrets.

// Package reconcile makes the cluster's Secret resources match the resolved
// catalog: create when absent, update when the payload differs, no-op when
// identical. Updates ride the ResourceVersion observed at fetch time and
// retry on conflict. Unrelated secrets reconcile in parallel under a bounded
// worker pool; a failure in one never cancels the others.
package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/example/secretctl/internal/kube"
	"github.com/example/secretctl/internal/resolve"
	"github.com/example/secretctl/internal/schema"
)

// ManagedByLabel marks a secret as owned by this tool so the verifier and
// later tooling can discover and clean up what we created.
const (
	ManagedByLabel = "app.kubernetes.io/managed-by"
	ManagedByValue = "secretctl"
)

// ManagedLabels returns the labels stamped on every managed resource.
func ManagedLabels() map[string]string {
	return map[string]string{ManagedByLabel: ManagedByValue}
}

// Options configure a reconciliation run.
type Options struct {
	Namespace string
	// Concurrency bounds the worker pool (default 4).
	Concurrency int
	// SecretTimeout caps each secret's reconciliation (default 10s).
	SecretTimeout time.Duration
	// DryRun computes actions without mutating anything.
	DryRun bool
	Log    logr.Logger
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.SecretTimeout <= 0 {
		o.SecretTimeout = 10 * time.Second
	}
	return o
}

// Reconciler applies the catalog's secrets to one namespace.
type Reconciler struct {
	client *kube.Client
	opts   Options
}

// New builds a Reconciler. The namespace must already exist (see
// kube.EnsureNamespace); reconciliation does not create it.
func New(client *kube.Client, opts Options) *Reconciler {
	return &Reconciler{client: client, opts: opts.withDefaults()}
}

// Reconcile processes every secret in the catalog and collects per-secret
// results. The returned error is non-nil only for run-fatal failures
// (connectivity, permissions); per-secret failures are reported in results
// with ActionFailed and never abort the remaining secrets.
func (r *Reconciler) Reconcile(ctx context.Context, catalog *schema.Catalog, values map[string]*resolve.Value) ([]Result, error) {
	results := make([]Result, len(catalog.Secrets))
	sem := make(chan struct{}, r.opts.Concurrency)
	var g errgroup.Group
	for i, spec := range catalog.Secrets {
		i, spec := i, spec
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			secretCtx, cancel := context.WithTimeout(ctx, r.opts.SecretTimeout)
			defer cancel()
			action, err := r.reconcileOne(secretCtx, spec, values)
			if err != nil {
				results[i] = Result{Secret: spec.Name, Action: ActionFailed, Err: err}
				return nil
			}
			results[i] = Result{Secret: spec.Name, Action: action}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if fatal := ClassifyFatal(res.Err); fatal != nil {
			return nil, fatal
		}
	}
	return results, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, spec schema.SecretSpec, values map[string]*resolve.Value) (Action, error) {
	desired, err := desiredData(spec, values)
	if err != nil {
		return ActionFailed, err
	}
	defer wipe(desired)

	var action Action
	err = withConflictRetry(ctx, func(ctx context.Context) error {
		existing, err := r.client.Clientset.CoreV1().Secrets(r.opts.Namespace).Get(ctx, spec.Name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			action = ActionCreated
			if r.opts.DryRun {
				return nil
			}
			_, err := r.client.Clientset.CoreV1().Secrets(r.opts.Namespace).Create(ctx, newSecret(spec.Name, r.opts.Namespace, desired), metav1.CreateOptions{})
			return err
		}
		if err != nil {
			return err
		}
		if payloadMatches(existing, desired) {
			action = ActionUnchanged
			return nil
		}
		action = ActionUpdated
		if r.opts.DryRun {
			return nil
		}
		// Update carries the ResourceVersion from the fetch above; the API
		// server rejects it with a conflict when someone else wrote first.
		existing.Data = cloneData(desired)
		existing.StringData = nil
		existing.Type = corev1.SecretTypeOpaque
		if existing.Labels == nil {
			existing.Labels = map[string]string{}
		}
		for k, v := range ManagedLabels() {
			existing.Labels[k] = v
		}
		_, err = r.client.Clientset.CoreV1().Secrets(r.opts.Namespace).Update(ctx, existing, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		r.opts.Log.V(1).Info("reconcile failed", "secret", spec.Name)
		return ActionFailed, fmt.Errorf("reconcile secret %q: %w", spec.Name, err)
	}
	return action, nil
}

// desiredData opens each sealed value just long enough to copy it into the
// API payload. Secret material travels only inside this structured payload,
// never through command lines or logged strings.
func desiredData(spec schema.SecretSpec, values map[string]*resolve.Value) (map[string][]byte, error) {
	data := make(map[string][]byte, len(spec.Keys))
	for _, key := range spec.Keys {
		val := values[key.SourceVar]
		if val == nil || val.Secret == nil {
			wipe(data)
			return nil, fmt.Errorf("secret %q key %q has no resolved value for %s", spec.Name, key.Name, key.SourceVar)
		}
		plaintext, err := val.Secret.Reveal()
		if err != nil {
			wipe(data)
			return nil, fmt.Errorf("secret %q key %q: %w", spec.Name, key.Name, err)
		}
		data[key.Name] = plaintext
	}
	return data, nil
}

func newSecret(name, namespace string, data map[string][]byte) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    ManagedLabels(),
		},
		Type: corev1.SecretTypeOpaque,
		Data: cloneData(data),
	}
}

// payloadMatches reports whether the live secret already carries the desired
// payload, type, and management labels.
func payloadMatches(existing *corev1.Secret, desired map[string][]byte) bool {
	if existing.Type != "" && existing.Type != corev1.SecretTypeOpaque {
		return false
	}
	if len(existing.Data) != len(desired) {
		return false
	}
	for k, v := range desired {
		if !bytes.Equal(existing.Data[k], v) {
			return false
		}
	}
	for k, v := range ManagedLabels() {
		if existing.Labels[k] != v {
			return false
		}
	}
	return true
}

func cloneData(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func wipe(data map[string][]byte) {
	for _, v := range data {
		for i := range v {
			v[i] = 0
		}
	}
}
