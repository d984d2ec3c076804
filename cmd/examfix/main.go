package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/examfix/internal/handler"
	appI18n "github.com/pavelanni/examfix/internal/i18n"
	"github.com/pavelanni/examfix/internal/llm"
	"github.com/pavelanni/examfix/internal/llm/prompts"
	"github.com/pavelanni/examfix/internal/model"
	"github.com/pavelanni/examfix/internal/runner"
	"github.com/pavelanni/examfix/internal/scope"
	"github.com/pavelanni/examfix/internal/session"
	"github.com/pavelanni/examfix/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examfix",
		Short: "Validate and repair exam questions with an LLM",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examfix --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the question validation web UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examfix.db", "SQLite database path or postgres:// URL")
	f.Int("db-max-conns", 10, "Maximum PostgreSQL pool connections")
	f.Int("db-min-conns", 1, "Minimum PostgreSQL pool connections")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Validation prompt variant (strict, standard, lenient)")
	f.Duration("delay", runner.DefaultDelay, "Pause between two validation calls")
	f.Duration("call-timeout", 0, "Timeout for one validation call (0 = none)")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /qa)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-user", "admin", "Operator login name")
	f.String("admin-password", "", "Operator password (or set EXAMFIX_ADMIN_PASSWORD)")
	f.String("session-store", "memory", "Login session store (memory, redis)")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL for the redis session store")
	f.Duration("session-ttl", session.DefaultTTL, "Login session lifetime")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Seed the local SQLite question bank from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "examfix.db", "SQLite database path")
	f.Bool("force", false, "Import files even if they were imported before")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examfix")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examfix")
	v.AddConfigPath("/etc/examfix")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	}
	return v
}

// normalizeBasePath returns "" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func openSessions(ctx context.Context, v *viper.Viper) (session.Store, error) {
	ttl := v.GetDuration("session-ttl")
	switch kind := strings.ToLower(v.GetString("session-store")); kind {
	case "", "memory":
		return session.NewMemoryStore(ttl), nil
	case "redis":
		return session.NewRedisStore(ctx, v.GetString("redis-url"), ttl)
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	if path := v.ConfigFileUsed(); path != "" {
		slog.Info("loaded config file", "path", path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	password := v.GetString("admin-password")
	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMFIX_ADMIN_PASSWORD env var")
	}
	adminHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	backend, err := store.Open(ctx, v.GetString("db"), store.Options{
		MaxConns: v.GetInt("db-max-conns"),
		MinConns: v.GetInt("db-min-conns"),
	})
	if err != nil {
		return fmt.Errorf("open question bank: %w", err)
	}
	defer backend.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	llmClient, err := llm.New(llm.Config{
		BaseURL: v.GetString("llm-url"),
		APIKey:  v.GetString("llm-key"),
		Model:   v.GetString("llm-model"),
		Variant: promptVariant,
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	err = llmClient.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	sessions, err := openSessions(ctx, v)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()

	run := runner.New(llmClient, backend,
		runner.WithDelay(v.GetDuration("delay")),
		runner.WithCallTimeout(v.GetDuration("call-timeout")),
		runner.WithLogger(slog.Default().With("component", "runner")),
	)
	scopeModel := scope.New(backend, run)
	if err := scopeModel.LoadExams(ctx); err != nil {
		// The dashboard still starts; the operator sees an empty exam list.
		slog.Warn("initial exam load failed", "error", err)
	}

	var importer handler.BankImporter
	if lite, ok := backend.(*store.Store); ok {
		importer = lite
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	h := handler.New(scopeModel, run, sessions, importer, model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		AdminUser:     v.GetString("admin-user"),
		AdminHash:     adminHash,
		SessionTTL:    v.GetDuration("session-ttl"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang, basePath, v.GetBool("secure-cookies")))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server",
			"addr", addr,
			"db_backend", fmt.Sprintf("%T", backend),
			"model", v.GetString("llm-model"),
			"prompt_variant", promptVariant,
			"delay", v.GetDuration("delay"),
			"lang", lang,
			"base_path", basePath,
			"session_store", v.GetString("session-store"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := run.Stop(); err == nil {
			slog.Info("stopped active validation run")
		}
		if err := run.Wait(shutdownCtx); err != nil {
			slog.Warn("validation call still in flight at shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	force := v.GetBool("force")
	for _, path := range args {
		if err := importFile(cmd.Context(), db, path, force); err != nil {
			return err
		}
	}
	count, err := db.QuestionCount()
	if err != nil {
		return err
	}
	slog.Info("question bank ready", "questions", count)
	return nil
}

func importFile(ctx context.Context, db *store.Store, path string, force bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if !force {
		if storedHash == hash {
			slog.Info("bank file unchanged, skipping", "path", path)
			return nil
		}
		if storedHash != "" {
			slog.Warn("bank file changed since last import, skipping to avoid duplicate questions (use --force)",
				"path", path)
			return nil
		}
	}

	var bank model.BankImport
	if err := json.Unmarshal(data, &bank); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	n, err := db.ImportBank(ctx, bank)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "count", n, "declared", bank.QuestionCount())
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
