package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/nl2sqlchat/nl2sqlchat/internal/config"
	"github.com/nl2sqlchat/nl2sqlchat/internal/schooldb"
)

// nl2sql-bootstrap recreates and reloads the school tables without starting
// the server, e.g. to prepare a shared PostgreSQL database.
func main() {
	_ = godotenv.Load()

	driver := flag.String("driver", "", "database driver override: duckdb|sqlite|postgres")
	dsn := flag.String("dsn", "", "database DSN override")
	flag.Parse()

	cfg, err := config.LoadFromEnv("nl2sql-bootstrap")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	dbCfg := schooldb.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	if *driver != "" {
		dbCfg.Driver = *driver
	}
	if *dsn != "" {
		dbCfg.DSN = *dsn
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, dialect, err := schooldb.Open(ctx, dbCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := schooldb.Bootstrap(ctx, db, dialect); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		_ = db.Close()
		os.Exit(1)
	}
	fmt.Printf("loaded %d student(s) and %d department(s) into %s\n",
		len(schooldb.Students()), len(schooldb.Departments()), dialect)
}
