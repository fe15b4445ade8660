package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mediolano-app/mip-activity-aggregator/internal/aggregator"
	"github.com/mediolano-app/mip-activity-aggregator/internal/config"
	"github.com/mediolano-app/mip-activity-aggregator/internal/connection"
	"github.com/mediolano-app/mip-activity-aggregator/internal/metrics"
	"github.com/mediolano-app/mip-activity-aggregator/internal/provider"
	"github.com/mediolano-app/mip-activity-aggregator/internal/resolver"
	"github.com/mediolano-app/mip-activity-aggregator/internal/server"
	"github.com/mediolano-app/mip-activity-aggregator/internal/storage"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config         *config.Config
	logger         *logrus.Logger
	connection     *connection.ConnectionManager
	store          storage.Store
	resolver       *resolver.Resolver
	metricsManager *metrics.Manager
	server         *server.HTTPServer
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeConnection(); err != nil {
		return fmt.Errorf("failed to initialize connection: %w", err)
	}

	if err := app.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	app.metricsManager = metrics.NewManager()
	app.initializeResolver()

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeConnection initializes the Starknet connection manager
func (app *Application) initializeConnection() error {
	app.logger.Info("Initializing Starknet connection manager")

	app.connection = connection.NewConnectionManager(&app.config.Starknet)

	if err := app.connection.Connect(app.ctx); err != nil {
		return fmt.Errorf("failed to connect to Starknet node: %w", err)
	}

	app.logger.Info("Connection manager initialized successfully")
	return nil
}

// initializeCache initializes the durable transaction metadata cache
func (app *Application) initializeCache() error {
	app.logger.Info("Initializing transaction metadata cache")

	store, err := storage.NewStore(&app.config.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to cache store: %w", err)
	}

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run cache migrations: %w", err)
	}

	app.store = store
	app.logger.Info("Transaction metadata cache initialized successfully")
	return nil
}

// initializeResolver initializes the metadata resolver and hydrates it from
// the durable cache
func (app *Application) initializeResolver() {
	voyager := provider.NewVoyagerClient(&app.config.Voyager)

	app.resolver = resolver.New(app.store, voyager, resolver.Config{
		TTL:        app.config.Voyager.CacheTTL,
		BatchLimit: app.config.Voyager.BatchLimit,
	})
	app.resolver.SetMetricsManager(app.metricsManager)
	app.resolver.Hydrate(app.ctx)
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	source := provider.NewStarknetSource(app.connection, &app.config.Starknet)
	factory := func(subject string) *aggregator.Aggregator {
		agg := aggregator.New(source, app.resolver, aggregator.Config{
			SubjectAddress:    subject,
			PageSize:          app.config.Aggregator.PageSize,
			FactoryAddress:    app.config.Starknet.FactoryAddress,
			TokenAddress:      app.config.Starknet.TokenAddress,
			FactoryStartBlock: app.config.Starknet.FactoryStartBlock,
			TokenStartBlock:   app.config.Starknet.TokenStartBlock,
		})
		agg.SetMetricsManager(app.metricsManager)
		return agg
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.store, app.connection, factory, app.metricsManager)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting MIP Activity Aggregator")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address":   fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"starknet_rpc":     app.config.Starknet.RPCURL,
		"factory_contract": app.config.Starknet.FactoryAddress,
		"token_contract":   app.config.Starknet.TokenAddress,
	}).Info("MIP Activity Aggregator started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping MIP Activity Aggregator")

	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close cache store")
		}
	}

	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close Starknet connection")
		}
	}

	app.logger.Info("MIP Activity Aggregator stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "mip-activity-aggregator",
	Short:   "Starknet IP marketplace activity aggregator",
	Long:    `An on-chain activity aggregation service for tokenized IP marketplaces on Starknet. It follows factory and token contract event streams, resolves transaction metadata through the Voyager explorer, and serves unified per-address activity feeds.`,
	Version: AppVersion,
	RunE:    runAggregator,
}

// runAggregator is the main command to run the aggregator service
func runAggregator(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MIP Activity Aggregator %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Starknet RPC: %s\n", cfg.Starknet.RPCURL)
		fmt.Printf("Factory contract: %s\n", cfg.Starknet.FactoryAddress)
		fmt.Printf("Token contract: %s\n", cfg.Starknet.TokenAddress)
		fmt.Printf("Cache: %s\n", cfg.Cache.Type)

		return nil
	},
}

// testCmd represents the connectivity test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := context.Background()
		fmt.Println("Testing MIP Activity Aggregator connectivity...")

		fmt.Printf("Testing Starknet connection to %s...\n", cfg.Starknet.RPCURL)
		conn := connection.NewConnectionManager(&cfg.Starknet)
		if err := conn.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to Starknet node: %w", err)
		}
		block, err := conn.GetLatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch latest block: %w", err)
		}
		fmt.Printf("✓ Starknet connection successful (latest block %d)\n", block)

		fmt.Printf("Testing cache connection (%s)...\n", cfg.Cache.Type)
		store, err := storage.NewStore(&cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to create cache store: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to cache store: %w", err)
		}
		fmt.Println("✓ Cache connection successful")

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
