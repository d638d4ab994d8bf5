package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smallnest/atlaschat/internal/agent"
	"github.com/smallnest/atlaschat/internal/bridge"
	"github.com/smallnest/atlaschat/internal/config"
	"github.com/smallnest/atlaschat/internal/history"
	"github.com/smallnest/atlaschat/internal/history/memory"
	"github.com/smallnest/atlaschat/internal/history/postgres"
	"github.com/smallnest/atlaschat/internal/history/redis"
	"github.com/smallnest/atlaschat/internal/history/sqlite"
	"github.com/smallnest/atlaschat/internal/log"
	"github.com/smallnest/atlaschat/internal/mcp"
	"github.com/smallnest/atlaschat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat backend HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New(log.ParseLevel(cfg.LogLevel))
	log.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	models, err := agent.NewModels(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building models: %w", err)
	}

	// The live connection changes on every rebuild; GET /tools reads
	// whichever one is current.
	var conn atomic.Pointer[mcp.Conn]

	build := func(ctx context.Context) (*bridge.Session, error) {
		c, err := mcp.Dial(ctx, mcp.Config{
			Transport: cfg.MCPTransport,
			Endpoint:  cfg.MCPRemoteURL,
			Command:   cfg.MCPCommand,
			Args:      cfg.MCPArgs,
		}, logger)
		if err != nil {
			return nil, err
		}
		conn.Store(c)

		a := agent.New(agent.Options{
			RouterModel:   models.Router,
			FastModel:     models.Fast,
			SmartModel:    models.Smart,
			ComplexModel:  models.Complex,
			Invoker:       c,
			SystemPrompt:  agent.WorkerSystemPrompt(c.ToolDocs(), c.Context().Resources, c.Context().UserInfo),
			MaxIterations: cfg.MaxIterations,
			Logger:        logger,
		})
		return &bridge.Session{Runner: a, Close: c.Close}, nil
	}

	b := bridge.New(bridge.Options{
		Build:         build,
		ReadyTimeout:  cfg.ReadyTimeout,
		SubmitTimeout: cfg.SubmitTimeout,
		StreamTimeout: cfg.StreamTimeout,
		Logger:        logger,
	})
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting agent loop: %w", err)
	}
	defer func() {
		if err := b.Stop(); err != nil {
			logger.Warn("stopping agent loop: %v", err)
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing history store: %v", err)
		}
	}()

	srv := server.New(server.Options{
		Dispatcher: b,
		Store:      store,
		MaxHistory: cfg.MaxHistory,
		Logger:     logger,
		ToolDocs: func() (string, error) {
			c := conn.Load()
			if c == nil || !b.Ready() {
				return "", bridge.ErrNotReady
			}
			return c.ToolDocs(), nil
		},
	})

	return server.Run(ctx, cfg.Addr(), srv, logger)
}

// openStore picks the history backend from configuration.
func openStore(ctx context.Context, cfg config.Config) (history.Store, error) {
	switch cfg.HistoryBackend {
	case "", "memory":
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.NewStore(sqlite.Options{Path: cfg.SQLitePath})
	case "redis":
		return redis.NewStore(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), nil
	case "postgres":
		return postgres.NewStore(ctx, postgres.Options{ConnString: cfg.PostgresURL})
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}
