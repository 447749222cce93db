package commands

import (
	"os"
	"path/filepath"
	"testing"

	"bibrenew/internal/notify"

	"github.com/stretchr/testify/require"
)

var bibEnv = []string{
	"BIB_PERGAMUM_URL",
	"BIB_PERGAMUM_LOGIN",
	"BIB_PERGAMUM_PASS",
	"BIB_MAX_RENEW",
	"BIB_EMAIL_TO_ADDR",
	"BIB_EMAIL_FROM_ADDR",
	"BIB_EMAIL_FROM_PASS",
	"BIB_SMTP_SERVER",
	"BIB_SMTP_PORT",
	"BIB_TIMEZONE",
	"BIB_DUMP_DIR",
	"BIB_VERBOSE",
}

func clearEnv(t *testing.T) {
	for _, name := range bibEnv {
		t.Setenv(name, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BIB_PERGAMUM_LOGIN", "20261234")
	t.Setenv("BIB_PERGAMUM_PASS", "secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "bibrenew.json5"))
	require.NoError(t, err)
	require.Equal(t, "http://www.pergamum.bib.ufba.br", cfg.Pergamum.BaseUrl)
	require.Equal(t, 7, cfg.MaxRenewals)
	require.Equal(t, "America/Bahia", cfg.Timezone)
	require.Equal(t, "smtp.gmail.com", cfg.Email.SmtpServer)
	require.Equal(t, 587, cfg.Email.SmtpPort)
	require.Equal(t, "identity", cfg.Reconcile.Match)
	require.Empty(t, cfg.Email.To)
	require.NotEmpty(t, cfg.DumpDir)
}

func TestLoadConfigLayers(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bibrenew.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// checked in
		pergamum: { login: "from-file", password: "file-pass" },
		max_renewals: 5,
		reconcile: { match: "exact" },
		email: { to: "patron@example.com", from: "bot@example.com", password: "app-pass" },
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bibrenew.local.json5"), []byte(`{
		timezone: "America/Sao_Paulo",
	}`), 0600))

	t.Setenv("BIB_PERGAMUM_LOGIN", "from-env")
	t.Setenv("BIB_SMTP_PORT", "465")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Pergamum.Login)
	require.Equal(t, "file-pass", cfg.Pergamum.Password)
	require.Equal(t, 5, cfg.MaxRenewals)
	require.Equal(t, "exact", cfg.Reconcile.Match)
	require.Equal(t, "America/Sao_Paulo", cfg.Timezone)
	require.Equal(t, 465, cfg.Email.SmtpPort)
	require.Equal(t, "smtp.gmail.com", cfg.Email.SmtpServer)
}

func TestLoadConfigInvalid(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing login",
			env:  map[string]string{"BIB_PERGAMUM_PASS": "secret"},
		},
		{
			name: "missing password",
			env:  map[string]string{"BIB_PERGAMUM_LOGIN": "20261234"},
		},
		{
			name: "recipient without sender",
			env: map[string]string{
				"BIB_PERGAMUM_LOGIN": "20261234",
				"BIB_PERGAMUM_PASS":  "secret",
				"BIB_EMAIL_TO_ADDR":  "patron@example.com",
			},
		},
		{
			name: "malformed max renewals",
			env: map[string]string{
				"BIB_PERGAMUM_LOGIN": "20261234",
				"BIB_PERGAMUM_PASS":  "secret",
				"BIB_MAX_RENEW":      "seven",
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			clearEnv(t)
			for name, value := range test.env {
				t.Setenv(name, value)
			}
			_, err := LoadConfig(filepath.Join(t.TempDir(), "bibrenew.json5"))
			require.Error(t, err)
		})
	}
}

func TestNewMailer(t *testing.T) {
	require.IsType(t, notify.NoopMailer{}, newMailer(EmailConfig{}))
	require.IsType(t, notify.SmtpMailer{}, newMailer(EmailConfig{
		To:         "patron@example.com",
		From:       "bot@example.com",
		Password:   "app-pass",
		SmtpServer: "smtp.gmail.com",
		SmtpPort:   587,
	}))
}

func TestLoadConfigVerboseOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bibrenew.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		pergamum: { login: "20261234", password: "secret" },
		verbose: true,
	}`), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.True(t, cfg.Verbose)

	t.Setenv("BIB_VERBOSE", "false")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.False(t, cfg.Verbose)

	t.Setenv("BIB_VERBOSE", "maybe")
	_, err = LoadConfig(path)
	require.Error(t, err)
}
