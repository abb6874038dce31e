// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundhaus/partyline/internal/api"
	"github.com/soundhaus/partyline/internal/app/engine"
	"github.com/soundhaus/partyline/internal/app/filter"
	"github.com/soundhaus/partyline/internal/infra/catalog"
	"github.com/soundhaus/partyline/internal/infra/config"
	"github.com/soundhaus/partyline/internal/infra/logger"
	"github.com/soundhaus/partyline/internal/infra/partystore"
)

var (
	app        = kingpin.New("partyline-server", "partyline shared listening room server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listFiltersCmd = app.Command("list-filters", "List available enqueue filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if err := validateFilterConfig(cfg); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	store, err := partystore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open party store: %w", err)
	}
	defer store.Close()

	var catalogClient *catalog.Client
	if cfg.Catalog.BaseURL != "" {
		catalogClient, err = catalog.New(catalog.Config{
			BaseURL: cfg.Catalog.BaseURL,
			APIKey:  cfg.Catalog.APIKey,
			Timeout: cfg.CatalogTimeout(),
		})
		if err != nil {
			return fmt.Errorf("failed to create catalog client: %w", err)
		}
	} else {
		zlog.Warn().Msg("no catalog configured, requests must carry full track documents")
	}

	sessions := engine.NewRegistry(engine.Config{
		TickInterval:     cfg.TickInterval(),
		GraceWindow:      cfg.GraceWindow(),
		ChatCapacity:     cfg.Session.ChatHistory,
		ChatMaxRunes:     cfg.Session.ChatMaxRunes,
		DeltaHistory:     cfg.Session.DeltaHistory,
		SubscriberBuffer: cfg.Session.SubscriberBuffer,
	}, func() *filter.Chain { return buildFilterChain(cfg) })
	defer sessions.CloseAll()

	apiSrv := api.New(store, sessions, catalogClient, []byte(cfg.Auth.TokenSecret), cfg.TokenTTL())

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apiSrv.Router(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	// Close sessions first so delta streams end before the listener does.
	sessions.CloseAll()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// buildFilterChain assembles the enqueue filter chain for one session
// from config. Invalid settings disable the filter rather than the
// server; validateFilterConfig has already reported them at startup.
func buildFilterChain(cfg *config.Config) *filter.Chain {
	chain := filter.NewChain()
	registry := filter.GetRegistered()

	for name, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}
		factory, exists := registry[name]
		if !exists {
			continue
		}
		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			zlog.Error().Msgf("failed to configure filter %s: %v", name, err)
			continue
		}
		chain.Add(f)
	}
	return chain
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, factory := range filter.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for name, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}
		factory, exists := registry[name]
		if !exists {
			return fmt.Errorf("unknown filter: %s", name)
		}
		if err := factory().ValidateConfig(filterCfg.Settings); err != nil {
			return fmt.Errorf("filter %s: %w", name, err)
		}
	}
	return nil
}
