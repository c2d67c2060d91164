package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jonwraymond/fhirgate/config"
)

// cliOptions holds values read from the command line.
type cliOptions struct {
	ConfigPath  string
	LogLevel    string
	Address     string
	UpstreamURL string
	AlwaysTrust bool
}

func parseCLIOptions(cmd *cobra.Command) (*cliOptions, error) {
	opts := &cliOptions{}
	var err error

	flags := cmd.Flags()
	if opts.ConfigPath, err = flags.GetString("config"); err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if opts.LogLevel, err = flags.GetString("log-level"); err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	opts.Address = optionalString(flags, "address")
	opts.UpstreamURL = optionalString(flags, "upstream")
	if f := flags.Lookup("always-trust"); f != nil {
		opts.AlwaysTrust, _ = flags.GetBool("always-trust")
	}
	return opts, nil
}

func optionalString(flags *pflag.FlagSet, name string) string {
	if flags.Lookup(name) == nil {
		return ""
	}
	v, _ := flags.GetString(name)
	return v
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(ctx context.Context, opts *cliOptions) (*config.Config, error) {
	cfg, err := config.Load(ctx, opts.ConfigPath, nil)
	if err != nil {
		return nil, err
	}

	overridden := false
	if opts.LogLevel != "" {
		cfg.Observability.LogLevel = opts.LogLevel
		overridden = true
	}
	if opts.Address != "" {
		cfg.Server.Address = opts.Address
		overridden = true
	}
	if opts.UpstreamURL != "" {
		cfg.Server.UpstreamURL = opts.UpstreamURL
		overridden = true
	}
	if overridden {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("flags: %w", err)
		}
	}
	return cfg, nil
}
