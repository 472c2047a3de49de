package main

import (
	"context"
	"flag"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/nozo-moto/flushprint"
	"github.com/nozo-moto/poorlock"
	"github.com/nozo-moto/poorlock/example/worker"
)

func main() {
	addr := flag.String("addr", "localhost:6379", "redis address")
	workers := flag.Int("workers", 10, "number of workers")
	rounds := flag.Int("rounds", 10, "increments per worker")
	flag.Parse()

	client := redis.NewClient(
		&redis.Options{
			Addr:     *addr,
			Password: "",
			DB:       0,
		},
	)
	defer client.Close()

	locker := poorlock.New(poorlock.NewRedisStore(client))
	count, err := worker.RunAll(context.Background(), locker, poorlock.MustKey("example:redis"), *workers, *rounds)
	if err != nil {
		log.Fatal(err)
	}
	flushprint.Print("final count ", count, " want ", *workers * *rounds)
}
