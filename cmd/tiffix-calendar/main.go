package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tiffix/order-calendar/internal/app"
	"github.com/tiffix/order-calendar/internal/calendar"
	"github.com/tiffix/order-calendar/internal/commands"
	"github.com/tiffix/order-calendar/internal/logger"
	"github.com/tiffix/order-calendar/internal/mapview"
	"github.com/tiffix/order-calendar/internal/session"
	"github.com/tiffix/order-calendar/internal/store"
)

func main() {
	// Check for subcommands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hash-password":
			commands.HashPassword(os.Args[2:])
			return
		case "import":
			commands.ImportOrders(os.Args[2:])
			return
		}
	}

	port := flag.Int("port", 0, "Port to listen on (overrides TIFFIX_PORT)")
	edit := flag.Bool("edit", false, "Enable edit mode (default is serve mode)")
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	cfg, err := app.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *edit {
		cfg.EditMode = true
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := app.Deps{
		Hub: mapview.NewHub(),
		Map: mapview.Config{
			Provider:       cfg.MapProvider,
			AccessToken:    cfg.MapAccessToken,
			AllowedOrigins: cfg.CORSOrigins,
		},
	}
	if !deps.Map.Enabled() {
		log.Info("no map access token configured, running calendar-only")
	}

	switch cfg.StoreDriver {
	case app.DriverMongo:
		m, err := store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal("failed to connect to mongo", "error", err)
		}
		defer func() { _ = m.Close(context.Background()) }()
		if err := m.EnsureIndexes(ctx); err != nil {
			log.Warn("failed to ensure mongo indexes", "error", err)
		}
		deps.Source = m
		if cfg.EditMode {
			log.Warn("edit mode needs the file store, serving read-only", "store_driver", cfg.StoreDriver)
		}
	default:
		f := store.NewFile(cfg.DataFile, log)
		seed, err := loadSeed(cfg.SeedFile, log)
		if err != nil {
			log.Fatal("failed to read seed orders", "file", cfg.SeedFile, "error", err)
		}
		if err := f.LoadOrSeed(seed, cfg.SeedFile, cfg.EditMode); err != nil {
			log.Fatal("failed to load order data", "file", cfg.DataFile, "error", err)
		}
		deps.Source = f
		deps.Editor = f
	}

	switch cfg.SessionDriver {
	case app.DriverRedis:
		r, err := session.DialRedis(ctx, cfg.RedisAddr, cfg.SessionTTL)
		if err != nil {
			log.Fatal("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		defer r.Close()
		deps.Sessions = r
	default:
		deps.Sessions = session.NewMemory(cfg.SessionTTL)
	}

	if cfg.EditMode {
		auth, err := app.LoadAuth(cfg.AuthFile, log)
		if err != nil {
			log.Fatal("failed to load auth credentials", "error", err)
		}
		deps.Auth = auth
	}

	srv, err := app.NewServer(cfg, log, deps)
	if err != nil {
		log.Fatal("failed to create server", "error", err)
	}
	if err := srv.Run(ctx); err != nil {
		log.Fatal("server error", "error", err)
	}
}

// loadSeed reads the fixture used to create a missing data file. A missing
// fixture yields an empty calendar.
func loadSeed(path string, log *logger.Logger) ([]calendar.Order, error) {
	orders, err := store.LoadSeed(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("seed file not found, starting with an empty calendar", "file", path)
		return nil, nil
	}
	return orders, err
}
