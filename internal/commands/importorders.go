package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tiffix/order-calendar/internal/app"
	"github.com/tiffix/order-calendar/internal/logger"
	"github.com/tiffix/order-calendar/internal/store"
)

// ImportOrders handles the import subcommand: it loads a YAML fixture into
// the configured order store.
func ImportOrders(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	seedFile := fs.String("file", "", "YAML fixture to import (default: TIFFIX_SEED_FILE)")
	replace := fs.Bool("replace", false, "Replace the data file instead of refusing when it exists (file store only)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tiffix-calendar import [OPTIONS]\n\n")
		fmt.Fprintf(os.Stderr, "Imports orders from a YAML fixture into the file or MongoDB store.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	cfg, err := app.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	path := *seedFile
	if path == "" {
		path = cfg.SeedFile
	}
	orders, err := store.LoadSeed(path)
	if err != nil {
		log.Fatal("failed to read fixture", "file", path, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cfg.StoreDriver {
	case app.DriverMongo:
		m, err := store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal("failed to connect to mongo", "error", err)
		}
		defer func() { _ = m.Close(context.Background()) }()
		if err := m.EnsureIndexes(ctx); err != nil {
			log.Fatal("failed to create indexes", "error", err)
		}
		n, err := m.Import(ctx, orders)
		if err != nil {
			log.Fatal("import failed", "error", err)
		}
		log.Info("orders imported", "orders", n, "database", cfg.MongoDatabase)
	default:
		if _, err := os.Stat(cfg.DataFile); err == nil && !*replace {
			log.Fatal("data file exists; pass -replace to overwrite it", "file", cfg.DataFile)
		}
		f := store.NewFile(cfg.DataFile, log)
		if err := f.Replace(orders, path); err != nil {
			log.Fatal("import failed", "error", err)
		}
		log.Info("orders imported", "orders", len(orders), "file", cfg.DataFile)
	}
}
