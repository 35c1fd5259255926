// Package main provides the meeting-optimizer command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/boblangley/meeting-optimizer/internal/agenda"
	"github.com/boblangley/meeting-optimizer/internal/attachments"
	"github.com/boblangley/meeting-optimizer/internal/canceller"
	"github.com/boblangley/meeting-optimizer/internal/config"
	"github.com/boblangley/meeting-optimizer/internal/db"
	"github.com/boblangley/meeting-optimizer/internal/google"
	"github.com/boblangley/meeting-optimizer/internal/policy"
	"github.com/boblangley/meeting-optimizer/internal/runner"
	"github.com/boblangley/meeting-optimizer/internal/version"
)

// app carries state shared by all commands.
type app struct {
	cfgPath  string
	jsonOut  bool
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func()
}

// services are the Google-backed collaborators.
type services struct {
	calendar *google.CalendarClient
	docs     *google.DocsClient
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   version.Name,
		Short: "Cancel recurring meetings whose agenda has no topics for today",
		Long: `meeting-optimizer checks today's recurring Google Calendar meetings and
cancels any occurrence whose attached Google Doc lists no agenda topics
under today's date heading.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.jsonOut, "json", "j", false, "Output as JSON")

	root.AddCommand(
		a.runCmd(),
		a.checkCmd(),
		a.watchCmd(),
		a.serveCmd(),
		a.authCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	a.closeLog = closeLog
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) authorizer(interactive bool) (*google.Authorizer, error) {
	oauthCfg, err := google.LoadConfig(a.cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	return &google.Authorizer{
		Config:      oauthCfg,
		Store:       google.NewTokenStore(a.cfg.TokenPath, a.logger),
		Interactive: interactive,
		In:          os.Stdin,
		Out:         os.Stdout,
		Timeout:     a.cfg.APITimeout,
		Logger:      a.logger,
	}, nil
}

// connect builds the Google clients. Consent is only offered when stdin is
// a terminal.
func (a *app) connect(ctx context.Context) (*services, error) {
	auth, err := a.authorizer(term.IsTerminal(int(os.Stdin.Fd())))
	if err != nil {
		return nil, err
	}
	client, err := auth.Client(ctx)
	if err != nil {
		return nil, err
	}
	return a.servicesFor(ctx, client)
}

func (a *app) servicesFor(ctx context.Context, client *http.Client) (*services, error) {
	retry := google.NewRetrier(google.RetryConfig{
		Attempts:  a.cfg.Retry.Attempts,
		BaseDelay: a.cfg.Retry.BaseDelay,
		MaxDelay:  a.cfg.Retry.MaxDelay,
		Logger:    a.logger,
	})

	cal, err := google.NewCalendarClient(ctx, google.CalendarConfig{
		HTTPClient: client,
		CalendarID: a.cfg.CalendarID,
		Retrier:    retry,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	docs := google.NewDocsClient(google.DocsConfig{
		HTTPClient: client,
		Endpoint:   a.cfg.DocsEndpoint,
		Retrier:    retry,
		Logger:     a.logger,
	})
	return &services{calendar: cal, docs: docs}, nil
}

// location is the configured timezone, else the calendar's setting.
func (a *app) location(ctx context.Context, svc *services) (*time.Location, error) {
	if loc := a.cfg.Location(); loc != nil {
		return loc, nil
	}
	if svc == nil {
		return time.Local, nil
	}
	return svc.calendar.Timezone(ctx)
}

func (a *app) openLedger() (*db.Store, error) {
	return db.Open(db.Config{
		Path:        a.cfg.LedgerPath,
		AutoRecover: true,
		Logger:      a.logger,
	})
}

func (a *app) evaluator() *agenda.Evaluator {
	return agenda.NewEvaluator(agenda.Config{
		MaxBlocks: a.cfg.Limits.MaxBlocks,
		Logger:    a.logger,
	})
}

func (a *app) policy() *policy.Policy {
	return policy.New(policy.Config{
		Resolver: attachments.NewResolver(attachments.Config{
			MaxAttachments: a.cfg.Limits.MaxAttachments,
			MaxURLLength:   a.cfg.Limits.MaxURLLength,
			MaxIDLength:    a.cfg.Limits.MaxDocIDLength,
			Logger:         a.logger,
		}),
		Evaluator: a.evaluator(),
		Logger:    a.logger,
	})
}

func (a *app) runner(svc *services, ledger runner.Ledger) *runner.Runner {
	return runner.New(runner.Config{
		Source:    svc.calendar,
		Fetcher:   svc.docs,
		Policy:    a.policy(),
		Canceller: canceller.New(svc.calendar, a.logger),
		Ledger:    ledger,
		Note:      a.cfg.CancellationNote,
		Logger:    a.logger,
	})
}
