package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gardenalert/internal/apperror"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaultsWithSecrets(t *testing.T) {
	t.Setenv("GARDENALERT_SMTP_USERNAME", "bot@example.com")
	t.Setenv("GARDENALERT_SMTP_PASSWORD", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.ServerPort)
	assert.Equal(t, ModePoll, cfg.Upstream.Mode)
	assert.Equal(t, 15*time.Second, cfg.Upstream.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.Subscriptions.TokenTTL)
	assert.True(t, cfg.Subscriptions.RequireVerification)
	assert.Equal(t, "bot@example.com", cfg.Mail.From)
	assert.Equal(t, ":3000", cfg.Addr())
}

func TestLoadYAMLAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	yml := writeFile(t, dir, "config.yaml", `
server_port: 8099
upstream:
  mode: stream
  reconnect_backoff: 7s
subscriptions:
  require_verification: false
mail:
  from: alerts@example.com
`)
	env := writeFile(t, dir, ".env", "GARDENALERT_SMTP_USERNAME=u@example.com\nGARDENALERT_SMTP_PASSWORD=pw\nGARDENALERT_UPSTREAM_KEY=k1\n")
	t.Cleanup(func() {
		os.Unsetenv("GARDENALERT_SMTP_USERNAME")
		os.Unsetenv("GARDENALERT_SMTP_PASSWORD")
		os.Unsetenv("GARDENALERT_UPSTREAM_KEY")
	})

	cfg, err := Load(yml, env)
	require.NoError(t, err)

	assert.Equal(t, 8099, cfg.ServerPort)
	assert.Equal(t, ModeStream, cfg.Upstream.Mode)
	assert.Equal(t, 7*time.Second, cfg.Upstream.ReconnectBackoff)
	assert.False(t, cfg.Subscriptions.RequireVerification)
	assert.Equal(t, "alerts@example.com", cfg.Mail.From)
	assert.Equal(t, "k1", cfg.Upstream.Key)
}

func TestLoadMissingSecretsIsConfigurationError(t *testing.T) {
	t.Setenv("GARDENALERT_SMTP_USERNAME", "")
	t.Setenv("GARDENALERT_SMTP_PASSWORD", "")

	_, err := Load("", "")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))
	assert.Contains(t, err.Error(), "GARDENALERT_SMTP_PASSWORD")
}

func TestMockModeNeedsNoSecrets(t *testing.T) {
	t.Setenv("GARDENALERT_SMTP_USERNAME", "")
	t.Setenv("GARDENALERT_SMTP_PASSWORD", "")
	yml := writeFile(t, t.TempDir(), "config.yaml", "mail:\n  mock: true\n")

	_, err := Load(yml, "")
	assert.NoError(t, err)
}

func TestShippedConfigRequiresSecrets(t *testing.T) {
	t.Setenv("GARDENALERT_SMTP_USERNAME", "")
	t.Setenv("GARDENALERT_SMTP_PASSWORD", "")

	_, err := Load(filepath.Join("..", "..", "config.yaml"), "")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Mail.Mock = true
	cfg.Upstream.Mode = "carrier-pigeon"
	cfg.Mail.TLS = "sometimes"
	cfg.Subscriptions.TokenTTL = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "mail.tls")
	assert.Contains(t, err.Error(), "token_ttl")
}

func TestLoadBadYAML(t *testing.T) {
	yml := writeFile(t, t.TempDir(), "config.yaml", "server_port: [nope")
	_, err := Load(yml, "")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))
}
