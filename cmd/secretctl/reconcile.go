// File: cmd/secretctl/reconcile.go
// Brief: CLI command wiring and implementation for 'reconcile'.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/example/secretctl/internal/externalbackend"
	"github.com/example/secretctl/internal/kube"
	"github.com/example/secretctl/internal/logging"
	"github.com/example/secretctl/internal/reconcile"
	"github.com/example/secretctl/internal/resolve"
	"github.com/example/secretctl/internal/schema"
	"github.com/example/secretctl/internal/secure"
	"github.com/example/secretctl/internal/verify"
)

type reconcileOptions struct {
	CatalogPath     string
	EnvFile         string
	VerifyOnly      bool
	DryRun          bool
	Strict          bool
	ExternalBackend bool
	Concurrency     int
	SecretTimeout   time.Duration
	GraceWindow     time.Duration
}

func newReconcileCommand(global *globalOptions) *cobra.Command {
	opts := &reconcileOptions{}
	cmd := &cobra.Command{
		Use:           "reconcile <namespace>",
		Short:         "Resolve, validate, and apply the declared secrets to a namespace",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(global.LogLevel)
			if err != nil {
				return err
			}
			client, err := kube.New(global.KubeconfigPath, global.KubeContext)
			if err != nil {
				return fmt.Errorf("build kubernetes client: %w", err)
			}
			return runReconcile(cmd.Context(), client, os.Environ(), args[0], *opts, log, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.CatalogPath, "catalog", "secrets.yaml", "Secret catalog file")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", "", "Local override file of key=value lines")
	cmd.Flags().BoolVar(&opts.VerifyOnly, "verify-only", false, "Skip mutation; verify existing state only")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Resolve, validate, and plan without mutating anything")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Pending verification counts toward a non-zero exit")
	cmd.Flags().BoolVar(&opts.ExternalBackend, "external-backend", false, "Apply store references instead of literal secret values")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "Reconcile worker pool size")
	cmd.Flags().DurationVar(&opts.SecretTimeout, "secret-timeout", 10*time.Second, "Per-secret reconcile timeout")
	cmd.Flags().DurationVar(&opts.GraceWindow, "grace-window", verify.DefaultGraceWindow, "How long an unmaterialized external secret stays pending")
	return cmd
}

// verificationFailedError maps verification outcomes onto the exit contract.
type verificationFailedError struct {
	Failed  int
	Pending int
}

func (e *verificationFailedError) Error() string {
	parts := []string{}
	if e.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d secret(s) failed verification", e.Failed))
	}
	if e.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d secret(s) still pending", e.Pending))
	}
	if len(parts) == 0 {
		return "verification failed"
	}
	return strings.Join(parts, "; ")
}

// runReconcile drives the whole engine: resolve, validate (hard gate), ensure
// namespace, reconcile or submit references, then verify. It is separated
// from command wiring so tests can inject fake clients.
func runReconcile(ctx context.Context, client *kube.Client, environ []string, namespace string, opts reconcileOptions, log logr.Logger, out io.Writer) error {
	catalog, err := schema.Load(opts.CatalogPath)
	if err != nil {
		return err
	}
	if opts.ExternalBackend {
		if err := externalbackend.Validate(catalog); err != nil {
			return &schema.ConfigError{Path: opts.CatalogPath, Issues: []string{err.Error()}}
		}
	}

	if opts.VerifyOnly {
		return runVerification(ctx, client, catalog, namespace, opts, log, out)
	}

	// Resolution and validation form the hard gate: every value must resolve
	// and validate before anything is mutated.
	values, err := resolveValues(ctx, catalog, environ, opts, log)
	if err != nil {
		return err
	}
	if result := schema.Validate(catalog, secretValues(values)); !result.OK() {
		return &schema.ValidationError{Failures: result.Failures()}
	}
	reportGenerated(out, values)

	if opts.DryRun {
		fmt.Fprintln(out, "Dry run: no changes will be made.")
	} else {
		ensured, err := kube.EnsureNamespace(ctx, client, namespace)
		if err != nil {
			if fatal := reconcile.ClassifyFatal(err); fatal != nil {
				return fatal
			}
			return err
		}
		if ensured == kube.NamespaceCreated {
			fmt.Fprintf(out, "Created namespace %s.\n", namespace)
		}
	}

	var results []reconcile.Result
	if opts.ExternalBackend {
		adapter, err := externalbackend.New(client, namespace, catalog.ExternalBackend, opts.DryRun, log)
		if err != nil {
			return &schema.ConfigError{Path: opts.CatalogPath, Issues: []string{err.Error()}}
		}
		results, err = adapter.Apply(ctx, catalog)
		if err != nil {
			return err
		}
	} else {
		reconciler := reconcile.New(client, reconcile.Options{
			Namespace:     namespace,
			Concurrency:   opts.Concurrency,
			SecretTimeout: opts.SecretTimeout,
			DryRun:        opts.DryRun,
			Log:           log,
		})
		results, err = reconciler.Reconcile(ctx, catalog, values)
		if err != nil {
			return err
		}
	}
	printResults(out, results, opts.DryRun)
	summary := reconcile.Summarize(results)
	fmt.Fprintf(out, "Summary: %s.\n", summary)

	var failures []reconcile.Result
	for _, res := range results {
		if res.Action == reconcile.ActionFailed {
			failures = append(failures, res)
		}
	}
	if len(failures) > 0 {
		return &reconcile.PartialFailureError{Failures: failures}
	}
	if opts.DryRun {
		return nil
	}
	return runVerification(ctx, client, catalog, namespace, opts, log, out)
}

func runVerification(ctx context.Context, client *kube.Client, catalog *schema.Catalog, namespace string, opts reconcileOptions, log logr.Logger, out io.Writer) error {
	verifier := verify.New(client, verify.Options{
		Namespace:   namespace,
		GraceWindow: opts.GraceWindow,
		Log:         log,
	})
	reports, err := verifier.Verify(ctx, catalog)
	if err != nil {
		return err
	}
	printReports(out, reports)

	failed, pending := 0, 0
	for _, report := range reports {
		switch report.Status {
		case verify.StatusFail:
			failed++
		case verify.StatusPending:
			pending++
		}
	}
	fmt.Fprintf(out, "Verification: %d pass, %d fail, %d pending.\n", len(reports)-failed-pending, failed, pending)
	if failed > 0 || (opts.Strict && pending > 0) {
		return &verificationFailedError{Failed: failed, Pending: pending}
	}
	return nil
}

// resolveValues builds the layered resolver from the run's inputs. The
// environment is the snapshot captured by the caller; nothing below reads
// ambient state.
func resolveValues(ctx context.Context, catalog *schema.Catalog, environ []string, opts reconcileOptions, log logr.Logger) (map[string]*resolve.Value, error) {
	var store resolve.StoreSource
	if catalog.Store != nil {
		token := ""
		for _, kv := range environ {
			if strings.HasPrefix(kv, "VAULT_TOKEN=") {
				token = strings.TrimPrefix(kv, "VAULT_TOKEN=")
			}
		}
		src, err := resolve.NewVaultSource(catalog.Store, token)
		if err != nil {
			return nil, &schema.ConfigError{Path: opts.CatalogPath, Issues: []string{err.Error()}}
		}
		store = src
	}
	resolver, err := resolve.New(resolve.Options{
		Environ:      environ,
		OverridePath: opts.EnvFile,
		Store:        store,
	})
	if err != nil {
		return nil, err
	}
	values, err := resolver.Resolve(ctx, catalog)
	if err != nil {
		return nil, err
	}
	log.V(1).Info("resolved values", "count", len(values))
	return values, nil
}

func secretValues(values map[string]*resolve.Value) map[string]*secure.Value {
	out := make(map[string]*secure.Value, len(values))
	for k, v := range values {
		out[k] = v.Secret
	}
	return out
}
