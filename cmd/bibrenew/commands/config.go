package commands

import (
	"errors"
	"fmt"
	"os"

	"bibrenew/internal/components/telemetry"
	"bibrenew/internal/renewal"
	"bibrenew/pkg/configutil"
)

type PergamumConfig struct {
	BaseUrl  string `json:"base_url"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

type EmailConfig struct {
	// To is the patron's address, notifications are disabled when it is empty.
	To         string `json:"to"`
	From       string `json:"from"`
	Password   string `json:"password"`
	SmtpServer string `json:"smtp_server"`
	SmtpPort   int    `json:"smtp_port"`
}

type ReconcileConfig struct {
	// Match is "identity" or "exact".
	Match string `json:"match"`
}

type Config struct {
	Pergamum    PergamumConfig   `json:"pergamum"`
	Email       EmailConfig      `json:"email"`
	MaxRenewals int              `json:"max_renewals"`
	Timezone    string           `json:"timezone"`
	DumpDir     string           `json:"dump_dir"`
	Verbose     bool             `json:"verbose"`
	Reconcile   ReconcileConfig  `json:"reconcile"`
	Telemetry   telemetry.Config `json:"telemetry"`
}

func defaultConfig() Config {
	dumpDir, err := os.UserHomeDir()
	if err != nil {
		dumpDir = "."
	}
	return Config{
		Pergamum: PergamumConfig{
			BaseUrl: "http://www.pergamum.bib.ufba.br",
		},
		Email: EmailConfig{
			SmtpServer: "smtp.gmail.com",
			SmtpPort:   587,
		},
		MaxRenewals: 7,
		Timezone:    "America/Bahia",
		DumpDir:     dumpDir,
		Reconcile: ReconcileConfig{
			Match: "identity",
		},
	}
}

func envConfig() (Config, error) {
	maxRenewals, err := configutil.EnvInt("BIB_MAX_RENEW")
	if err != nil {
		return Config{}, err
	}
	smtpPort, err := configutil.EnvInt("BIB_SMTP_PORT")
	if err != nil {
		return Config{}, err
	}
	return Config{
		Pergamum: PergamumConfig{
			BaseUrl:  os.Getenv("BIB_PERGAMUM_URL"),
			Login:    os.Getenv("BIB_PERGAMUM_LOGIN"),
			Password: os.Getenv("BIB_PERGAMUM_PASS"),
		},
		Email: EmailConfig{
			To:         os.Getenv("BIB_EMAIL_TO_ADDR"),
			From:       os.Getenv("BIB_EMAIL_FROM_ADDR"),
			Password:   os.Getenv("BIB_EMAIL_FROM_PASS"),
			SmtpServer: os.Getenv("BIB_SMTP_SERVER"),
			SmtpPort:   smtpPort,
		},
		MaxRenewals: maxRenewals,
		Timezone:    os.Getenv("BIB_TIMEZONE"),
		DumpDir:     os.Getenv("BIB_DUMP_DIR"),
	}, nil
}

// LoadConfig layers the defaults, the config file at path (and its .local
// variant) and the BIB_* environment variables, in that order. A missing config
// file is not an error. Empty string and integer variables count as unset, since
// neither is a valid value for those fields. BIB_VERBOSE is applied whenever it
// is set, so "false" turns off verbose logging enabled by the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	file, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		cfg, err = configutil.Overlay(cfg, file)
		if err != nil {
			return Config{}, err
		}
	}

	env, err := envConfig()
	if err != nil {
		return Config{}, err
	}
	cfg, err = configutil.Overlay(cfg, env)
	if err != nil {
		return Config{}, err
	}
	verbose, set, err := configutil.EnvBool("BIB_VERBOSE")
	if err != nil {
		return Config{}, err
	}
	if set {
		cfg.Verbose = verbose
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errlist []error
	if c.Pergamum.Login == "" {
		errlist = append(errlist, errors.New("pergamum login is required (BIB_PERGAMUM_LOGIN)"))
	}
	if c.Pergamum.Password == "" {
		errlist = append(errlist, errors.New("pergamum password is required (BIB_PERGAMUM_PASS)"))
	}
	if c.MaxRenewals <= 0 {
		errlist = append(errlist, fmt.Errorf("max renewals must be positive, got %d", c.MaxRenewals))
	}
	if c.Email.To != "" {
		if c.Email.From == "" {
			errlist = append(errlist, errors.New("sender address is required when notifying (BIB_EMAIL_FROM_ADDR)"))
		}
		if c.Email.Password == "" {
			errlist = append(errlist, errors.New("sender password is required when notifying (BIB_EMAIL_FROM_PASS)"))
		}
	}
	_, err := renewal.MatcherByName(c.Reconcile.Match)
	if err != nil {
		errlist = append(errlist, err)
	}
	return errors.Join(errlist...)
}
