package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hmacConfig = `
server:
  upstream_url: http://localhost:8080/fhir
tls:
  key_store:
    location: classpath:server.p12
    password: changeit
authorization:
  hmac_secret: test-secret
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewRootCmd(t *testing.T) {
	root := newRootCmd()

	assert.Equal(t, "fhirgate", root.Use)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
	for _, name := range []string{"address", "upstream", "always-trust"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
	}

	token, _, err := root.Find([]string{"token"})
	require.NoError(t, err)
	assert.Equal(t, "token", token.Name())
	assert.Nil(t, token.Flags().Lookup("always-trust"))
}

func TestParseCLIOptions(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected cliOptions
	}{
		{
			name:     "defaults",
			args:     []string{"serve"},
			expected: cliOptions{ConfigPath: defaultConfigPath},
		},
		{
			name: "all flags",
			args: []string{"serve", "-c", "/etc/fhirgate.yaml", "-l", "debug",
				"--address", ":9443", "--upstream", "http://hapi:8080/fhir", "--always-trust"},
			expected: cliOptions{
				ConfigPath:  "/etc/fhirgate.yaml",
				LogLevel:    "debug",
				Address:     ":9443",
				UpstreamURL: "http://hapi:8080/fhir",
				AlwaysTrust: true,
			},
		},
		{
			name:     "token command",
			args:     []string{"token", "--config", "idp.yaml"},
			expected: cliOptions{ConfigPath: "idp.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			cmd, rest, err := root.Find(tt.args)
			require.NoError(t, err)
			require.NoError(t, cmd.ParseFlags(rest))

			opts, err := parseCLIOptions(cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, *opts)
		})
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := writeFile(t, "fhirgate.yaml", hmacConfig)

	cfg, err := loadConfig(context.Background(), &cliOptions{
		ConfigPath:  path,
		LogLevel:    "debug",
		Address:     "127.0.0.1:9443",
		UpstreamURL: "https://hapi.internal/fhir",
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "127.0.0.1:9443", cfg.Server.Address)
	assert.Equal(t, "https://hapi.internal/fhir", cfg.Server.UpstreamURL)

	_, err = loadConfig(context.Background(), &cliOptions{ConfigPath: path, LogLevel: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")

	_, err = loadConfig(context.Background(), &cliOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTokenCommand(t *testing.T) {
	var form map[string][]string
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realms/fhir/protocol/openid-connect/token" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc.def.ghi","token_type":"Bearer","expires_in":300,"refresh_expires_in":0,"not-before-policy":0,"scope":"profile email"}`))
	}))
	t.Cleanup(idp.Close)

	t.Setenv("FHIRGATE_TEST_SECRET", "s3cret")
	path := writeFile(t, "fhirgate.yaml", hmacConfig+`
oauth2:
  auth_server_url: `+idp.URL+`/realms/fhir
  client_id: hapi-fhir
  client_secret: secretref:env:FHIRGATE_TEST_SECRET
observability:
  log_level: error
`)

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"token", "--config", path})
	require.NoError(t, root.Execute())

	assert.Equal(t, []string{"client_credentials"}, form["grant_type"])
	assert.Equal(t, []string{"hapi-fhir"}, form["client_id"])
	assert.Equal(t, []string{"s3cret"}, form["client_secret"])

	var out tokenOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "abc.def.ghi", out.AccessToken)
	assert.Equal(t, "Bearer", out.TokenType)
	assert.Equal(t, int64(300), out.ExpiresIn)
	assert.Equal(t, "profile email", out.Scope)
}

func TestTokenCommand_RequiresOAuth2(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--config", writeFile(t, "fhirgate.yaml", hmacConfig)})

	require.ErrorIs(t, root.Execute(), errOAuth2NotConfigured)
}
