package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"github.com/hpungsan/stravagpx/internal/auth"
	"github.com/hpungsan/stravagpx/internal/config"
	"github.com/hpungsan/stravagpx/internal/db"
	"github.com/hpungsan/stravagpx/internal/errors"
	"github.com/hpungsan/stravagpx/internal/export"
	"github.com/hpungsan/stravagpx/internal/ratelimit"
	"github.com/hpungsan/stravagpx/internal/strava"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(database *sql.DB, cfg *config.Config, baseDir string, logger zerolog.Logger) *cli.App {
	app := &cli.App{
		Name:    "stravagpx",
		Usage:   "Export Strava activities to GPX files",
		Version: Version,
		Commands: []*cli.Command{
			authCmd(database, cfg, logger),
			exportCmd(database, cfg, baseDir, logger),
			historyCmd(database),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// authCmd creates the auth command.
func authCmd(database *sql.DB, cfg *config.Config, logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize access to your Strava activities",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "client-id", Usage: "API application client ID (https://www.strava.com/settings/api)"},
			&cli.StringFlag{Name: "client-secret", Usage: "API application client secret"},
		},
		Action: func(c *cli.Context) error {
			in := bufio.NewReader(c.App.Reader)
			out := c.App.Writer
			store := auth.NewStore(database)

			clientID := firstNonEmpty(c.String("client-id"), cfg.ClientID)
			clientSecret := firstNonEmpty(c.String("client-secret"), cfg.ClientSecret)
			if clientID == "" || clientSecret == "" {
				storedID, storedSecret, err := store.Client()
				if err == nil {
					clientID = firstNonEmpty(clientID, storedID)
					clientSecret = firstNonEmpty(clientSecret, storedSecret)
				}
			}
			if clientID == "" {
				fmt.Fprintln(out, "Visit https://www.strava.com/settings/api")
				fmt.Fprint(out, "Your Client ID: ")
				clientID = readLine(in)
			}
			if clientSecret == "" {
				fmt.Fprint(out, "Client Secret: ")
				clientSecret = readLine(in)
			}
			if clientID == "" || clientSecret == "" {
				return outputError(errors.NewInvalidRequest("client ID and client secret are required"))
			}
			if err := store.SaveClient(clientID, clientSecret); err != nil {
				return outputError(err)
			}

			conf := auth.OAuthConfig(cfg, clientID, clientSecret)
			fmt.Fprintln(out, "Open the following URL in your browser and authorize access:")
			fmt.Fprintln(out, auth.AuthorizeURL(conf))
			fmt.Fprint(out, "Then paste the URL of the page you were redirected to: ")

			code, err := auth.CodeFromURL(readLine(in))
			if err != nil {
				return outputError(err)
			}

			tok, err := auth.Exchange(httpContext(c.Context, cfg), conf, store, code)
			if err != nil {
				return outputError(err)
			}
			logger.Info().Time("expiry", tok.Expiry).Msg("stored access token")

			return outputJSON(out, authOutput{Authorized: true, ExpiresAt: tok.Expiry.Unix()})
		},
	}
}

type authOutput struct {
	Authorized bool  `json:"authorized"`
	ExpiresAt  int64 `json:"expires_at"`
}

// exportCmd creates the export command.
func exportCmd(database *sql.DB, cfg *config.Config, baseDir string, logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export new activities as GPX files (newest first, stops at the first one already exported)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Scan every activity instead of stopping at the first exported one"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Export directory (default: export_dir from config)"},
		},
		Action: func(c *cli.Context) error {
			dir := c.String("dir")
			if dir == "" {
				dir = cfg.ResolveExportDir(baseDir)
			}
			scanAll := c.Bool("all")

			src, err := newSource(c.Context, database, cfg, logger)
			if err != nil {
				return outputError(err)
			}

			run := &db.Run{
				ID:        export.NewRunID(),
				StartedAt: time.Now().Unix(),
				Mode:      export.Mode(scanAll),
				ExportDir: dir,
			}
			if err := db.InsertRun(database, run); err != nil {
				return outputError(err)
			}

			out, runErr := export.Run(c.Context, src, export.Input{
				Dir:      dir,
				ScanAll:  scanAll,
				Progress: c.App.Writer,
				RunID:    run.ID,
				Log:      logger,
			})
			finishRun(database, run, out, runErr, logger)

			if runErr != nil {
				return outputError(runErr)
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// newSource wires the token source, rate limiter and API client.
func newSource(ctx context.Context, database *sql.DB, cfg *config.Config, logger zerolog.Logger) (*strava.Client, error) {
	store := auth.NewStore(database)
	clientID, clientSecret := cfg.ClientID, cfg.ClientSecret
	if clientID == "" || clientSecret == "" {
		var err error
		if clientID, clientSecret, err = store.Client(); err != nil {
			return nil, err
		}
	}

	ctx = httpContext(ctx, cfg)
	ts, err := auth.TokenSource(ctx, auth.OAuthConfig(cfg, clientID, clientSecret), store, logger)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = cfg.RequestTimeout()

	limiter := ratelimit.New(cfg.LimitPer15Minutes, cfg.LimitPerDay, clock.New(), logger)
	return strava.NewClient(httpClient, strava.Options{
		BaseURL:  cfg.APIBaseURL,
		PageSize: cfg.PageSize,
	}, limiter, logger), nil
}

// finishRun records the outcome of a run in the journal. Journal failures are logged only.
func finishRun(database *sql.DB, run *db.Run, out *export.Output, runErr error, logger zerolog.Logger) {
	finished := time.Now().Unix()
	run.FinishedAt = &finished
	if out != nil {
		run.Examined = out.Examined
		run.Exported = out.Exported
		run.Skipped = out.Skipped
		run.Empty = out.Empty
		run.Manual = out.Manual
		run.Failed = out.Failed
		run.Stopped = out.Stopped
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}
	if err := db.FinishRun(database, run); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run")
	}
}

// historyCmd creates the history command.
func historyCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent export runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: db.DefaultHistoryLimit, Usage: "Maximum runs to list"},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("limit")
			if limit < 0 {
				return outputError(errors.NewInvalidRequest("limit must be non-negative"))
			}

			runs, err := db.ListRuns(database, limit)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, historyOutput{Runs: runs, Count: len(runs)})
		},
	}
}

type historyOutput struct {
	Runs  []db.Run `json:"runs"`
	Count int      `json:"count"`
}

// Helper functions

// httpContext carries a client with the configured timeout to oauth2 token requests.
func httpContext(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: cfg.RequestTimeout()})
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var eErr *errors.ExportError
	if stderrors.As(err, &eErr) {
		msg := fmt.Sprintf("[%s] %s", eErr.Code, eErr.Message)
		if eErr.Code == errors.ErrRemote || eErr.Code == errors.ErrUnauthorized {
			msg += fmt.Sprintf(" (status %d)", eErr.Status)
		}
		return cli.Exit(msg, 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readLine reads one trimmed line; EOF yields what was read so far.
func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
