package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"bibrenew/internal/components/chrono"
	"bibrenew/internal/components/telemetry"
	"bibrenew/internal/notify"
	"bibrenew/internal/pergamum"
	"bibrenew/internal/renewal"
	"bibrenew/internal/renewer"
	"bibrenew/pkg/serviceutil"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "bibrenew.json5", "The config file to read, it may be absent.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

var rootCmd = &cobra.Command{
	Use:   "bibrenew",
	Short: "bibrenew renews the library loans due today and emails the patron about it.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		s := mustSession(cmd.Context(), cfg)

		r := newRenewer(cfg, s)
		err := r.Run(cmd.Context())
		s.Close()
		if err != nil {
			serviceutil.Fatal("renewal run failed", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRenewer(cfg Config, s session) *renewer.Renewer {
	match, err := renewal.MatcherByName(cfg.Reconcile.Match)
	if err != nil {
		serviceutil.Fatal("reconcile matcher", err)
	}
	return renewer.New(s.client, newMailer(cfg.Email), s.clock, s.tel, renewer.Options{
		MaxRenewals: cfg.MaxRenewals,
		Match:       match,
		Dumps:       s.dumps,
	})
}

func mustConfig() Config {
	cfg, err := LoadConfig(*configPath)
	if *verbose {
		cfg.Verbose = true
	}
	telemetry.InitSlog(cfg.Verbose, "run_id", runId(), "login", cfg.Pergamum.Login)
	if err != nil {
		serviceutil.Fatal("invalid configuration", err)
	}
	return cfg
}

func runId() string {
	id, err := random.String(8)
	if err != nil {
		return "unknown"
	}
	return id
}

func newMailer(cfg EmailConfig) notify.Mailer {
	if cfg.To == "" {
		return notify.NoopMailer{}
	}
	return notify.NewSmtpMailer(notify.SmtpConfig{
		Server:       cfg.SmtpServer,
		Port:         cfg.SmtpPort,
		EmailAddress: cfg.From,
		Password:     cfg.Password,
		To:           cfg.To,
	})
}

// session holds what every command needs to talk to the catalog.
type session struct {
	tel       telemetry.API
	clock     chrono.StandardImpl
	client    *pergamum.Client
	dumps     telemetry.FilesystemOutput
	telemetry telemetry.Telemetry
}

func mustSession(ctx context.Context, cfg Config) session {
	tel := telemetry.SlogAPI{}

	otelTelemetry, err := telemetry.Setup(ctx, "bibrenew", cfg.Telemetry)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		serviceutil.Fatal("load timezone", err, "timezone", cfg.Timezone)
	}

	dumps, err := telemetry.NewFilesystemOutput(cfg.DumpDir, "bibrenew-", tel)
	if err != nil {
		serviceutil.Fatal("open dump directory", err, "dir", cfg.DumpDir)
	}

	opts := pergamum.ClientOptions{
		BaseUrl:  cfg.Pergamum.BaseUrl,
		Login:    cfg.Pergamum.Login,
		Password: cfg.Pergamum.Password,
	}
	if cfg.Verbose {
		opts.Output = dumps
	}
	client, err := pergamum.NewClient(opts, tel)
	if err != nil {
		serviceutil.Fatal("create catalog client", err)
	}

	return session{
		tel:       tel,
		clock:     clock,
		client:    client,
		dumps:     dumps,
		telemetry: otelTelemetry,
	}
}

func (s session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := s.telemetry.Shutdown(ctx)
	if err != nil {
		s.tel.ReportWarning("telemetry.shutdown", err)
	}
}
