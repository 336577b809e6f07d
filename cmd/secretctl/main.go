// File: cmd/secretctl/main.go
// Brief: CLI bootstrap, root command wiring, and exit-code mapping.

// main.go bootstraps secretctl: it builds the root Cobra command and executes
// it with a signal-aware context, then maps the failure taxonomy onto the
// documented exit codes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/secretctl/internal/buildinfo"
	"github.com/example/secretctl/internal/reconcile"
	"github.com/example/secretctl/internal/resolve"
	"github.com/example/secretctl/internal/schema"
	"github.com/example/secretctl/internal/secure"
)

// Exit codes, part of the command contract:
//
//	0 success
//	1 configuration, missing-value, or validation error (nothing mutated)
//	2 connectivity or permission error
//	3 partial reconciliation or verification failure
const (
	exitOK           = 0
	exitConfig       = 1
	exitConnectivity = 2
	exitPartial      = 3
)

func main() {
	defer secure.Purge()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		cancel()
		secure.Purge()
		os.Exit(exitCodeFor(err))
	}
}

type globalOptions struct {
	KubeconfigPath string
	KubeContext    string
	LogLevel       string
}

func newRootCommand() *cobra.Command {
	global := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "secretctl",
		Short:         "Provision and verify Kubernetes secrets before workloads start",
		Long:          "secretctl resolves credential material from layered sources, validates it against a declared catalog, reconciles managed Secret resources idempotently, and independently verifies the result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       buildinfo.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlagEnv(cmd.Flags())
		},
	}
	cmd.PersistentFlags().StringVar(&global.KubeconfigPath, "kubeconfig", "", "Path to kubeconfig (defaults to standard loading rules)")
	cmd.PersistentFlags().StringVar(&global.KubeContext, "context", "", "Kubeconfig context to use")
	cmd.PersistentFlags().StringVar(&global.LogLevel, "log-level", "info", "Diagnostic log level: debug, info, warn, error")

	cmd.AddCommand(newReconcileCommand(global))
	cmd.AddCommand(newCatalogCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// bindFlagEnv lets any flag be supplied as SECRETCTL_<FLAG> (hyphens become
// underscores), with explicit flags taking precedence.
func bindFlagEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix("SECRETCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(flag *pflag.Flag) {
		if bindErr != nil || flag.Changed {
			return
		}
		if val := v.GetString(flag.Name); val != "" {
			if err := fs.Set(flag.Name, val); err != nil {
				bindErr = fmt.Errorf("apply SECRETCTL_%s: %w", strings.ToUpper(strings.ReplaceAll(flag.Name, "-", "_")), err)
			}
		}
	})
	return bindErr
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var connErr *reconcile.ConnectivityError
	var permErr *reconcile.PermissionError
	if errors.As(err, &connErr) || errors.As(err, &permErr) {
		return exitConnectivity
	}
	var partialErr *reconcile.PartialFailureError
	var verifyErr *verificationFailedError
	if errors.As(err, &partialErr) || errors.As(err, &verifyErr) {
		return exitPartial
	}
	var cfgErr *schema.ConfigError
	var missingErr *resolve.MissingValueError
	var validationErr *schema.ValidationError
	if errors.As(err, &cfgErr) || errors.As(err, &missingErr) || errors.As(err, &validationErr) {
		return exitConfig
	}
	return exitConfig
}
