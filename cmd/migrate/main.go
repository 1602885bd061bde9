package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/go-marketplace/pkg/config"
	"github.com/sakashimaa/go-marketplace/pkg/db"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	dir := flag.String("dir", "./migrations", "migrations directory")
	down := flag.Bool("down", false, "revert every migration instead of applying")
	flag.Parse()

	cfg := config.MustLoad()

	logger, err := config.NewLogger(cfg.LoggerConfig("migrate"))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := db.Migrate(*dir, cfg.Postgres.URL, !*down, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}
