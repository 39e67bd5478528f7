package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/young1lin/agentsearch/internal/cli"
	"github.com/young1lin/agentsearch/internal/config"
	"github.com/young1lin/agentsearch/internal/dispatcher"
	"github.com/young1lin/agentsearch/internal/handler"
	"github.com/young1lin/agentsearch/internal/render"
	"github.com/young1lin/agentsearch/internal/session"
	"github.com/young1lin/agentsearch/internal/storage"
	"github.com/young1lin/agentsearch/internal/ui"
	"github.com/young1lin/agentsearch/pkg/logger"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
)

var (
	cfgFile    string
	port       int
	webhookURL string
	storeKind  string
	showVer    bool
	outputFmt  string
)

var rootCmd = &cobra.Command{
	Use:   "agentsearch",
	Short: "Chat-style search widget backed by a webhook",
	Long: `A small server hosting a chat-style search widget. Queries are
posted to a remote webhook, and whatever shape of JSON it answers with is
normalized into result cards.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVer {
			fmt.Printf("agentsearch %s (built %s)\n", Version, BuildDate)
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("starting server",
			zap.String("version", Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)

		return startServer(cfg)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Send one query and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		d, closeStore, err := newDispatcher(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		return cli.Ask(cmd.Context(), d, strings.Join(args, " "), outputFmt, cmd.OutOrStdout())
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Search interactively from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		d, closeStore, err := newDispatcher(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		rl, err := cli.NewTerminal()
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		r := render.New()
		ctrl := ui.NewController(&ui.Handles{}, d, r)
		return cli.NewREPL(ctrl, r, rl, cmd.OutOrStdout()).Run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: search ./config.yaml, ./configs, ../configs)")
	rootCmd.PersistentFlags().StringVar(&webhookURL, "webhook", "", "webhook URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "session-store", "", "session store: bolt or memory (overrides config)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	rootCmd.Flags().BoolVarP(&showVer, "version", "v", false, "show version")
	askCmd.Flags().StringVarP(&outputFmt, "output", "o", cli.FormatText, "output format: text, json or yaml")

	rootCmd.AddCommand(askCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration, applies flag overrides and initializes logging
func loadConfig() (*config.Config, error) {
	cfg := config.Load(cfgFile)

	// Override config with command line flags
	if port > 0 {
		cfg.Server.Port = port
	}
	if webhookURL != "" {
		cfg.Webhook.URL = webhookURL
	}
	if storeKind != "" {
		cfg.Session.Store = storeKind
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// newDispatcher wires the session store and the webhook dispatcher
func newDispatcher(cfg *config.Config) (*dispatcher.Dispatcher, func(), error) {
	var store session.Store
	closeStore := func() {}

	switch cfg.Session.Store {
	case "memory":
		store = session.NewMemoryStore()
	default:
		boltStore, err := storage.NewSessionStore(cfg.Session.Path)
		if err != nil {
			// the widget still works, with non-persistent session ids
			logger.Warn("session store unavailable, using temporary session ids",
				zap.String("path", cfg.Session.Path),
				zap.Error(err),
			)
			break
		}
		store = boltStore
		closeStore = func() {
			if err := boltStore.Close(); err != nil {
				logger.Error("failed to close session store", zap.Error(err))
			}
		}
	}

	return dispatcher.New(&cfg.Webhook, session.NewManager(store)), closeStore, nil
}

func startServer(cfg *config.Config) error {
	d, closeStore, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	widget := handler.NewWidgetHandler(cfg, d, render.New())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      widget,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf(`
╔═══════════════════════════════════════════════════════════╗
║                 agentsearch %s
╠═══════════════════════════════════════════════════════════╣
║  Widget:  http://%s:%d/
║  Health:  http://%s:%d/health
║  Webhook: %s
╚═══════════════════════════════════════════════════════════╝

`, Version, cfg.Server.Host, cfg.Server.Port, cfg.Server.Host, cfg.Server.Port, cfg.Webhook.URL)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	case <-quit:
	}

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
