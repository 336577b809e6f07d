// File: cmd/secretctl/catalog.go
// Brief: CLI command wiring and implementation for 'catalog'.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/secretctl/internal/schema"
)

// newCatalogCommand prints the declared specs: secrets, keys, sources, and
// rules. Values are never resolved here, so there is nothing to leak.
func newCatalogCommand() *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Print the declared secrets, their keys, and validation rules",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := schema.Load(catalogPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, spec := range catalog.Secrets {
				fmt.Fprintf(out, "secret %s (%d keys)\n", spec.Name, len(spec.Keys))
				for _, key := range spec.Keys {
					var attrs []string
					attrs = append(attrs, "from "+key.SourceVar)
					if key.Rule.MinLength > 0 {
						attrs = append(attrs, fmt.Sprintf("minLength=%d", key.Rule.MinLength))
					}
					if key.Rule.Pattern != "" {
						attrs = append(attrs, fmt.Sprintf("pattern=%s", key.Rule.Pattern))
					}
					if key.Generatable {
						attrs = append(attrs, "generatable")
					}
					fmt.Fprintf(out, "  %s: %s\n", key.Name, strings.Join(attrs, ", "))
				}
			}
			if catalog.Store != nil {
				fmt.Fprintf(out, "store: %s at %s\n", catalog.Store.Type, catalog.Store.Address)
			}
			if catalog.ExternalBackend != nil {
				kind := "SecretStore"
				if catalog.ExternalBackend.ClusterScoped {
					kind = "ClusterSecretStore"
				}
				fmt.Fprintf(out, "external backend: %s %s\n", kind, catalog.ExternalBackend.StoreName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "secrets.yaml", "Secret catalog file")
	return cmd
}
