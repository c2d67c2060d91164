// Package main is the entry point for the fhirgate binary.
// It serves a FHIR API behind mutual TLS and bearer-token authorization.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at link time.
var version = "dev"

const defaultConfigPath = "fhirgate.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for fhirgate.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fhirgate",
		Short: "TLS and token gateway for a FHIR REST API",
		Long: `fhirgate terminates mutual TLS, checks bearer tokens against a
required client role and proxies authorized requests to an upstream FHIR
server.

Example:
  fhirgate serve --config /etc/fhirgate/fhirgate.yaml
  fhirgate token --config /etc/fhirgate/fhirgate.yaml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(), newTokenCmd())
	return rootCmd
}
