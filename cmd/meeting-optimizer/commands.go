package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/boblangley/meeting-optimizer/internal/agenda"
	"github.com/boblangley/meeting-optimizer/internal/db"
	"github.com/boblangley/meeting-optimizer/internal/document"
	"github.com/boblangley/meeting-optimizer/internal/runner"
	"github.com/boblangley/meeting-optimizer/internal/server"
	"github.com/boblangley/meeting-optimizer/internal/version"
	"github.com/boblangley/meeting-optimizer/internal/watcher"
)

func (a *app) runCmd() *cobra.Command {
	var opts runner.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check today's recurring meetings and cancel those without topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.logger.Info("meeting-optimizer starting", "version", version.Version, "dry_run", opts.DryRun)

			svc, err := a.connect(ctx)
			if err != nil {
				a.logger.Error("setup failed", "error", err)
				return err
			}

			loc, err := a.location(ctx, svc)
			if err != nil {
				a.logger.Error("could not determine timezone", "error", err)
				return err
			}
			today := time.Now().In(loc)
			a.logger.Info("checking meetings", "date", today.Format(db.DayLayout), "timezone", loc.String())

			ledger, err := a.openLedger()
			if err != nil {
				a.logger.Error("could not open run ledger", "error", err)
				return err
			}
			defer ledger.Close()

			report, err := a.runner(svc, ledger).Run(ctx, today, opts)
			if err != nil {
				a.logger.Error("run failed", "error", err)
				return err
			}

			if a.jsonOut {
				if err := a.printJSON(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}

			if report.Failures > 0 {
				return fmt.Errorf("%d event(s) failed", report.Failures)
			}
			a.logger.Info("meeting-optimizer finished")
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Log what would be cancelled without changing the calendar")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Run even if today already completed successfully")
	return cmd
}

func printReport(r *runner.Report) {
	if r.Skipped {
		fmt.Printf("%s: already ran successfully today\n", r.Day)
		return
	}
	fmt.Printf("%s: %d event(s), %d failure(s)\n", r.Day, len(r.Events), r.Failures)
	for _, o := range r.Events {
		line := fmt.Sprintf("  %-12s %-18s %s", o.Action, o.Reason, o.Summary)
		if o.Error != "" {
			line += "  (" + o.Error + ")"
		}
		fmt.Println(line)
	}
}

type checkResult struct {
	Source  string        `json:"source"`
	Verdict string        `json:"verdict,omitempty"`
	Result  agenda.Result `json:"result"`
	Error   string        `json:"error,omitempty"`
}

func (a *app) checkCmd() *cobra.Command {
	var date string
	var docIDs []string

	cmd := &cobra.Command{
		Use:   "check [FILE...]",
		Short: "Evaluate agenda files or documents for a day",
		Long: `Evaluate local agenda files (markdown, or Docs JSON as returned by
documents.get) or live Google Docs, and print whether each lists topics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 && len(docIDs) == 0 {
				return errors.New("nothing to check: pass agenda files or --doc")
			}

			day := time.Now()
			if loc := a.cfg.Location(); loc != nil {
				day = day.In(loc)
			}
			if date != "" {
				d, err := time.ParseInLocation(db.DayLayout, date, day.Location())
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = d
			}

			eval := a.evaluator()
			var results []checkResult
			failed := 0

			for _, path := range args {
				res := checkResult{Source: path}
				blocks, err := document.ParseFile(path)
				if err != nil {
					res.Error = err.Error()
					failed++
				} else {
					res.Result = eval.Evaluate(blocks, day)
					res.Verdict = res.Result.Verdict()
				}
				results = append(results, res)
			}

			if len(docIDs) > 0 {
				svc, err := a.connect(ctx)
				if err != nil {
					return err
				}
				for _, id := range docIDs {
					res := checkResult{Source: "doc:" + id}
					blocks, err := svc.docs.FetchDocument(ctx, id)
					if err != nil {
						res.Error = err.Error()
						failed++
					} else {
						res.Result = eval.Evaluate(blocks, day)
						res.Verdict = res.Result.Verdict()
					}
					results = append(results, res)
				}
			}

			if a.jsonOut {
				if err := a.printJSON(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Error != "" {
						fmt.Printf("%s: error: %s\n", r.Source, r.Error)
						continue
					}
					fmt.Printf("%s: %s (%s)\n", r.Source, r.Verdict, r.Result.Outcome)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d source(s) could not be read", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to check as YYYY-MM-DD (default today)")
	cmd.Flags().StringSliceVar(&docIDs, "doc", nil, "Google Docs document id to fetch and check (repeatable)")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Watch a directory of markdown agendas and report today's verdicts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := a.cfg.AgendaDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return errors.New("no agenda directory: pass DIR or set agenda_dir")
			}

			now := time.Now
			if loc := a.cfg.Location(); loc != nil {
				now = func() time.Time { return time.Now().In(loc) }
			}

			w, err := watcher.New(watcher.Config{
				Dir:       dir,
				Evaluator: a.evaluator(),
				Now:       now,
				Logger:    a.logger,
				OnVerdict: func(v watcher.Verdict) {
					fmt.Printf("%s: %s (%s)\n", v.Path, v.Result.Verdict(), v.Result.Outcome)
				},
			})
			if err != nil {
				return err
			}
			defer w.Stop()

			if _, err := w.Scan(ctx); err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			a.logger.Info("watcher stopped")
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var httpAddr string
	var healthPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve agenda checks and dry-run decisions as MCP tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ledger, err := a.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			mcpCfg := server.MCPConfig{
				Evaluator: a.evaluator(),
				History:   ledger,
				Location:  a.cfg.Location(),
				Logger:    a.logger,
			}

			// Tools that need Google are offered only with a usable token.
			auth, err := a.authorizer(false)
			if err == nil {
				var client *http.Client
				client, err = auth.Client(ctx)
				if err == nil {
					var svc *services
					if svc, err = a.servicesFor(ctx, client); err == nil {
						if mcpCfg.Location == nil {
							if loc, locErr := svc.calendar.Timezone(ctx); locErr == nil {
								mcpCfg.Location = loc
							}
						}
						mcpCfg.Fetcher = svc.docs
						mcpCfg.Runner = a.runner(svc, ledger)
					}
				}
			}
			if err != nil {
				a.logger.Warn("Google access unavailable, serving local agenda checks only", "error", err)
			}

			mcpServer := server.NewMCPServer(mcpCfg)

			if httpAddr == "" {
				a.logger.Info("serving MCP over stdio")
				return mcpServer.RunStdio(ctx)
			}
			return a.serveHTTP(ctx, mcpServer, ledger, httpAddr, healthPort)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	cmd.Flags().IntVar(&healthPort, "health-port", 8080, "Health check HTTP server port (0 to disable, HTTP mode only)")
	return cmd
}

func (a *app) serveHTTP(ctx context.Context, mcpServer *server.MCPServer, ledger *db.Store, addr string, healthPort int) error {
	mcpHTTPServer := &http.Server{
		Addr:    addr,
		Handler: mcpServer.HTTPHandler(),
	}
	go func() {
		a.logger.Info("starting MCP HTTP server", "addr", addr)
		if err := mcpHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("MCP HTTP server error", "error", err)
		}
	}()

	var healthServer *server.HealthServer
	if healthPort > 0 {
		healthServer = server.NewHealthServer(server.HealthConfig{
			Port: healthPort,
			Checks: map[string]server.Check{
				"ledger": ledger.Ping,
				"mcp":    server.PortCheck(localAddr(addr)),
			},
			Logger: a.logger,
		})
		go func() {
			if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("health server error", "error", err)
			}
		}()
	}

	a.logger.Info("server ready", "mcp", addr, "health", healthPort)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mcpHTTPServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("MCP HTTP server shutdown error", "error", err)
	}
	if healthServer != nil {
		if err := healthServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("health server shutdown error", "error", err)
		}
	}
	a.logger.Info("server shutdown complete")
	return nil
}

// localAddr turns a listen address like ":8000" into a dialable one.
func localAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	if _, err := strconv.Atoi(addr); err == nil {
		return "localhost:" + addr
	}
	return addr
}

func (a *app) authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Calendar and Docs",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := a.authorizer(true)
			if err != nil {
				return err
			}
			if _, err := auth.Consent(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Token saved to %s\n", a.cfg.TokenPath)
			return nil
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if a.jsonOut {
				a.printJSON(map[string]string{"name": version.Name, "version": version.Version})
				return
			}
			fmt.Printf("%s %s\n", version.Name, version.Version)
		},
	}
}
