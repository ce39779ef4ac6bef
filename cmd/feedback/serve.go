package main

import (
	"fmt"

	"github.com/jonathan/feedback-reviews/internal/config"
	"github.com/jonathan/feedback-reviews/internal/server"
	"github.com/jonathan/feedback-reviews/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var (
	servePort      int
	serveMemory    bool
	serveTemplates string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server exposing the reviewer, admin and scheduler endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep reviews in memory instead of PostgreSQL")
	serveCmd.Flags().StringVar(&serveTemplates, "templates", "", "Templates YAML to seed the memory store")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	a, err := newApp(cmd.Context(), cfg, logger, serveMemory, serveTemplates)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.Scheduler.TokenHash == "" {
		logger.Warn("scheduler.token_hash is not set; scheduler endpoints will reject every call")
	}

	srvCfg := server.Config{
		Port:               cfg.Server.Port,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		Service:            a.service(),
		Scheduler:          sched,
		Tokens:             server.NewJWTService(jwtConfig).AsTokenValidator(),
		SchedulerTokenHash: cfg.Scheduler.TokenHash,
		RateLimit:          ratelimit.NewConfig(cfg.Server.RateLimit, cfg.Server.RateBurst),
		Logger:             logger,
	}
	if a.db != nil {
		srvCfg.Database = a.db
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(cmd.Context())
}
