package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/config"
	"github.com/jonathan/letterlab/internal/llm"
	"github.com/jonathan/letterlab/internal/prompts"
	"github.com/jonathan/letterlab/internal/server"
	"github.com/jonathan/letterlab/internal/server/ratelimit"
	"github.com/jonathan/letterlab/internal/tokens"
	"github.com/jonathan/letterlab/internal/workflow"
)

var (
	servePort  string
	serveStore string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start the HTTP server that exposes the participant (/lab) and admin (/api/admin) endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides PORT)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Store backend: postgres or memory (overrides STORE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if servePort != "" {
		cfg.Port = servePort
	}
	if serveStore != "" {
		cfg.Store = serveStore
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	promptStore := prompts.NewStore(store, logger)
	if _, err := promptStore.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed prompts: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg.LLM())
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer func() { _ = client.Close() }()

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}
	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return fmt.Errorf("failed to create password config: %w", err)
	}
	admin, err := config.NewAdminCredentials(cfg.AdminUsername, passwordConfig)
	if err != nil {
		return fmt.Errorf("failed to create admin credentials: %w", err)
	}

	tokenService := tokens.NewService(store, logger)
	wf := workflow.New(workflow.Deps{
		Sessions: store,
		Progress: store,
		Prompts:  promptStore,
		Tokens:   tokenService,
		LLM:      client,
		Retry:    cfg.Retry(),
		Logger:   logger,
	})

	srv := server.New(server.Deps{
		Store:    store,
		Workflow: wf,
		Prompts:  promptStore,
		Tokens:   tokenService,
		JWT:      server.NewJWTService(jwtConfig),
		Admin:    admin,
		Limiter:  ratelimit.NewLimiter(ratelimit.LoadConfig()),
		Logger:   logger,
	}, server.Options{
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
	})

	logger.Info("starting letterlab",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store),
		zap.String("llm_provider", cfg.LLMProvider),
	)
	return srv.Start()
}
