// Package main is the entry point for the codevault server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts in main() of package main. Keep it minimal:
//  1. Read configuration
//  2. Create dependencies (logger, database, services, handlers)
//  3. Start the server
//
// This file is the "composition root": the one place that knows every
// concrete type and wires them together. Everything below it depends only
// on interfaces or on what it is handed.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/codevault/internal/auth"
	"github.com/sakif/codevault/internal/config"
	"github.com/sakif/codevault/internal/detector"
	"github.com/sakif/codevault/internal/executor"
	"github.com/sakif/codevault/internal/executor/docker"
	"github.com/sakif/codevault/internal/handler"
	"github.com/sakif/codevault/internal/importer"
	"github.com/sakif/codevault/internal/language"
	"github.com/sakif/codevault/internal/license"
	"github.com/sakif/codevault/internal/mail"
	"github.com/sakif/codevault/internal/middleware"
	"github.com/sakif/codevault/internal/publish"
	"github.com/sakif/codevault/internal/repository/sqlite"
	"github.com/sakif/codevault/internal/server"
	"github.com/sakif/codevault/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger picks the slog handler from LOG_FORMAT and LOG_LEVEL.
//
// Log levels (from least to most severe): Debug → Info → Warn → Error.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// === DATABASE ===
	// os.MkdirAll creates the data directory if needed (like `mkdir -p`).
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// === SHARED INFRASTRUCTURE ===
	lic := license.NewChecker(cfg.LicenseFile)
	logger.Info("license", slog.Bool("pro", lic.IsPro()), slog.String("file", cfg.LicenseFile))

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService()
	langs := language.Default()

	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.SMTPEnabled() {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn("SMTP_HOST not set: outgoing mail is only logged")
	}

	// The Docker executor is optional. The interface stays nil when it is
	// off, which the snippet service reports as "execution disabled".
	var exec executor.Executor
	if cfg.ExecutorEnabled {
		dockerCfg := docker.DefaultConfig()
		dockerCfg.Runtimes = langs.Runtimes()
		d, err := docker.New(dockerCfg, logger)
		if err != nil {
			logger.Warn("Docker executor unavailable: code execution disabled", slog.String("error", err.Error()))
		} else {
			defer d.Close()
			exec = d
		}
	}

	// === SERVICES ===
	audit := service.NewAuditService(db.Audit(), lic, logger)
	settings := service.NewSettingsService(db.Settings(), audit, logger)
	templates := service.NewTemplateService(db.Templates(), mail.NewRenderer(), mailer, settings, lic, audit, cfg.PublicURL, logger)
	authSvc := service.NewAuthService(db.Users(), tokens, passwords, settings, audit, templates, logger)
	snippets := service.NewSnippetService(service.SnippetDeps{
		Snippets:   db.Snippets(),
		Folders:    db.Folders(),
		Categories: db.Categories(),
		Teams:      db.Teams(),
		Users:      db.Users(),
		Tags:       db.Tags(),
		Settings:   settings,
		Audit:      audit,
		License:    lic,
		Detector:   detector.Default(),
		Languages:  langs,
		Executor:   exec,
		Publisher:  publish.NewClient(),
		Logger:     logger,
	})
	migration := service.NewMigrationService(
		importer.NewRunner(importer.NewClient(nil), cfg.ImportDelay, logger),
		snippets, lic, audit, logger,
	)

	// === HANDLERS ===
	var github handler.GitHubLogin
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		logger.Info("GitHub login disabled: GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET not set")
	}

	handlers := server.Handlers{
		Auth:     handler.NewAuthHandler(authSvc, github, cfg.SessionTTL, cfg.CookieSecure, logger),
		Snippets: handler.NewSnippetHandler(snippets, logger),
		Execute:  handler.NewExecuteHandler(snippets, langs, logger),
		Organize: handler.NewOrganizeHandler(
			service.NewFolderService(db.Folders(), logger),
			service.NewCategoryService(db.Categories(), audit, logger),
			service.NewTagService(db.Tags(), audit, logger),
			logger,
		),
		Teams: handler.NewTeamHandler(service.NewTeamService(db.Teams(), db.Users(), lic, audit, logger), logger),
		Admin: handler.NewAdminHandler(handler.AdminServices{
			Users:     service.NewUserAdminService(db.Users(), passwords, audit, logger),
			Approvals: service.NewApprovalService(db.Snippets(), db.Users(), templates, audit, logger),
			Settings:  settings,
			Templates: templates,
			Audit:     audit,
			Dashboard: service.NewDashboardService(db.Stats(), audit, lic),
			License:   lic,
		}, logger),
		Migrate: handler.NewMigrateHandler(migration, logger),
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Port:               cfg.Port,
		StaticDir:          cfg.StaticDir,
		CORSOrigins:        cfg.CORSOrigins,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		TrustedProxies:     trusted,
	}, handlers, auth.NewAuthenticator(tokens, db.Users()), db, logger)

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}
