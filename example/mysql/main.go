package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/nozo-moto/flushprint"
	"github.com/nozo-moto/poorlock"
	"github.com/nozo-moto/poorlock/example/worker"
)

const defaultDSN = "root:pass@tcp(localhost:3306)/test"

func main() {
	workers := flag.Int("workers", 3, "number of workers")
	rounds := flag.Int("rounds", 10, "increments per worker")
	flag.Parse()

	db, err := openDB(dsn())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	locker, err := newLocker(ctx, db)
	if err != nil {
		log.Fatal(err)
	}
	count, err := worker.RunAll(ctx, locker, poorlock.MustKey("example:mysql"), *workers, *rounds)
	if err != nil {
		log.Fatal(err)
	}
	flushprint.Print("final count ", count, " want ", *workers * *rounds)
}

func dsn() string {
	if v := os.Getenv("POORLOCK_MYSQL_DSN"); v != "" {
		return v
	}
	return defaultDSN
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	return db, nil
}

func newLocker(ctx context.Context, db *sql.DB) (*poorlock.Locker, error) {
	store, err := poorlock.NewMySQLStore(db, "poor_locks")
	if err != nil {
		return nil, err
	}
	if err := store.CreateTable(ctx); err != nil {
		return nil, err
	}
	return poorlock.New(store, poorlock.WithPollDelay(50*time.Millisecond)), nil
}
