package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"runtime"
	"time"

	_ "net/http/pprof"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/nozo-moto/flushprint"
	"github.com/nozo-moto/poorlock"
	"github.com/nozo-moto/poorlock/example/worker"
)

func main() {
	server := flag.String("server", "127.0.0.1:11211", "memcache server")
	workers := flag.Int("workers", 10, "number of workers")
	rounds := flag.Int("rounds", 10, "increments per worker")
	flag.Parse()

	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()
	go func() {
		t := time.NewTicker(time.Duration(1) * time.Second)
		for range t.C {
			flushprint.Print("goroutine count ", runtime.NumGoroutine())
		}
	}()

	locker := poorlock.New(
		poorlock.NewMemcacheStore(memcache.New(*server)),
		poorlock.WithPollDelay(20*time.Millisecond),
	)
	count, err := worker.RunAll(context.Background(), locker, poorlock.MustKey("example:memcache"), *workers, *rounds)
	if err != nil {
		log.Fatal(err)
	}
	flushprint.Print("final count ", count, " want ", *workers * *rounds)
}
