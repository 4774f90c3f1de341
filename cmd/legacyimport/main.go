package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kinobot/internal/config"
	"kinobot/internal/legacy"
	"kinobot/internal/storage"
)

// target is a store the legacy data can be written into.
type target interface {
	legacy.Target
	Close() error
}

func main() {
	_ = godotenv.Load()

	source := flag.String("legacy", os.Getenv("LEGACY_DB_PATH"), "path to the legacy sqlite database")
	driver := flag.String("driver", envOrDefault("STORAGE_DRIVER", config.DriverSQLite), "target store: sqlite or mongo")
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/kinobot.db"), "target sqlite database")
	mongoURI := flag.String("mongo-uri", os.Getenv("MONGODB_URI"), "target MongoDB URI")
	mongoDB := flag.String("mongo-db", envOrDefault("MONGODB_DATABASE", "kinobot"), "target MongoDB database")
	force := flag.Bool("force", false, "import even if the target already has data")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *source == "" {
		fmt.Fprintln(os.Stderr, "Usage: legacyimport -legacy path [-driver sqlite|mongo] [-db path] [-force]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *source, *driver, *dbPath, *mongoURI, *mongoDB, *force); err != nil {
		log.Error("legacy import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, source, driver, dbPath, mongoURI, mongoDB string, force bool) error {
	src, err := legacy.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	var dst target
	switch driver {
	case config.DriverSQLite:
		dst, err = storage.NewSQLite(dbPath)
	case config.DriverMongo:
		dst, err = storage.NewMongo(ctx, mongoURI, mongoDB)
	default:
		err = fmt.Errorf("unknown driver %q", driver)
	}
	if err != nil {
		return err
	}
	defer func() { _ = dst.Close() }()

	rep, err := legacy.Import(ctx, src, dst, force, log)
	if err != nil {
		return err
	}
	if rep.Skipped {
		fmt.Println("target already has data; rerun with -force to import anyway")
		return nil
	}
	for table, n := range rep.Counts {
		fmt.Printf("%-22s %d\n", table, n)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
