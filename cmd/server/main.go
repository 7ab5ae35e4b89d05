package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	identity "warden/internal/identity/models"
	"warden/internal/identity/seeder"
	"warden/internal/identity/token"
	"warden/internal/platform/config"
	"warden/internal/platform/database"
	"warden/internal/platform/logger"
	"warden/internal/server"
	"warden/migrations"
	id "warden/pkg/domain"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML config file",
		EnvVars: []string{"WARDEN_CONFIG"},
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func main() {
	app := &cli.App{
		Name:  "warden",
		Usage: "credential ceremonies, session security, impersonation and rate limiting",
		Flags: []cli.Flag{configFlag, debugFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server and background workers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations",
				Action: migrate,
			},
			{
				Name:   "reap",
				Usage:  "Delete expired challenges, revocations and rate limit counters once",
				Action: reap,
			},
			{
				Name:  "tokengen",
				Usage: "Mint a token pair for a subject (local testing)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject-id", Usage: "Subject ID (UUID)", Required: true},
					&cli.StringFlag{Name: "session-id", Usage: "Session ID (UUID); empty for a sessionless token"},
					&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
				},
				Action: tokengen,
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func load(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	if c.Bool(debugFlag.Name) {
		cfg.Log.Level = "debug"
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	return cfg, log, nil
}

func serve(c *cli.Context) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing warden",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"storage", cfg.Storage.Backend,
		"ratelimit", cfg.RateLimit.Backend,
	)

	app, err := server.Build(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer app.Close() //nolint:errcheck // shutdown path

	if cfg.Seed.Enabled && cfg.IsDev() {
		seeded, err := seeder.New(app.Identity, log).SeedAll(ctx)
		if err != nil {
			return err
		}
		for _, subject := range seeded {
			log.Info("demo subject available", "subject_id", subject.ID, "role", subject.Role)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return app.RunWorkers(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	pool, err := database.New(c.Context, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, nil)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("database.url is required")
	}
	defer pool.Close() //nolint:errcheck // process exits next

	applied, err := database.Migrate(c.Context, pool.DB(), migrations.FS)
	if err != nil {
		return err
	}
	log.Info("migrations applied", "count", len(applied), "versions", applied)
	return nil
}

func reap(c *cli.Context) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	app, err := server.Build(c.Context, cfg, log, nil)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck // process exits next

	reaped, err := app.Reaper.RunOnce(c.Context)
	if err != nil {
		return err
	}
	cleaned, err := app.Cleanup.RunOnce(c.Context)
	if err != nil {
		return err
	}
	log.Info("reap complete",
		"challenges", reaped.DeletedChallenges,
		"revocations", reaped.DeletedRevocations,
		"rate_limit_counters", cleaned.Deleted,
	)
	return nil
}

type tokenOutput struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SubjectID    string    `json:"subject_id"`
	SessionID    string    `json:"session_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// tokengen signs with the configured key, so tokens only validate against a
// server sharing that configuration.
func tokengen(c *cli.Context) error {
	cfg, _, err := load(c)
	if err != nil {
		return err
	}
	subjectID, err := id.ParseSubjectID(c.String("subject-id"))
	if err != nil {
		return err
	}
	var sessionID id.SessionID
	if raw := c.String("session-id"); raw != "" {
		if sessionID, err = id.ParseSessionID(raw); err != nil {
			return err
		}
	}

	jwt := token.NewJWTService(cfg.Tokens.SigningKey, cfg.Tokens.Issuer, cfg.Tokens.Audience, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	pair, err := jwt.IssuePair(c.Context, identity.IssueRequest{SubjectID: subjectID, SessionID: sessionID})
	if err != nil {
		return err
	}
	out := tokenOutput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		SubjectID:    subjectID.String(),
		ExpiresAt:    pair.AccessExpiresAt,
	}
	if !sessionID.IsNil() {
		out.SessionID = sessionID.String()
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintf(c.App.Writer, "Subject ID:  %s\n", out.SubjectID)
	if out.SessionID != "" {
		fmt.Fprintf(c.App.Writer, "Session ID:  %s\n", out.SessionID)
	}
	fmt.Fprintf(c.App.Writer, "Expires At:  %s\n\n", out.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(c.App.Writer, "Access Token:\n%s\n\nRefresh Token:\n%s\n", out.AccessToken, out.RefreshToken)
	return nil
}
