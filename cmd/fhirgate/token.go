package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/fhirgate/auth"
	"github.com/jonwraymond/fhirgate/observe"
)

var errOAuth2NotConfigured = errors.New("oauth2.auth_server_url and oauth2.client_id are required")

// tokenOutput is what the token command prints.
type tokenOutput struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	NotBeforePolicy  int64  `json:"not-before-policy,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Acquire an access token with the configured client credentials",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
}

func runToken(cmd *cobra.Command, _ []string) error {
	opts, err := parseCLIOptions(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	if !cfg.OAuth2.Configured() {
		return errOAuth2NotConfigured
	}

	logger := observe.NewLoggerWithWriter(cfg.Observability.LogLevel, cmd.ErrOrStderr()).
		With(observe.F("service", cfg.Observability.ServiceName))
	tokens := auth.NewTokenClient(auth.TokenClientConfig{Logger: logger})

	resp, err := tokens.Acquire(ctx, cfg.OAuth2.AuthServerURL, cfg.OAuth2.ClientID, cfg.OAuth2.ClientSecret)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tokenOutput{
		AccessToken:      resp.AccessToken,
		TokenType:        resp.TokenType,
		ExpiresIn:        resp.ExpiresIn,
		RefreshExpiresIn: resp.RefreshExpiresIn,
		NotBeforePolicy:  resp.NotBeforePolicy,
		Scope:            resp.Scope,
	})
}
