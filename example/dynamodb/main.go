package main

import (
	"context"
	"flag"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nozo-moto/flushprint"
	"github.com/nozo-moto/poorlock"
	"github.com/nozo-moto/poorlock/example/worker"
)

func main() {
	table := flag.String("table", "poor-locker-lock-table", "lock table with hash key \"hash_key\"")
	endpoint := flag.String("endpoint", "http://localhost:8000", "DynamoDB endpoint (empty for AWS)")
	workers := flag.Int("workers", 5, "number of workers")
	rounds := flag.Int("rounds", 5, "increments per worker")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal(err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if *endpoint != "" {
			o.BaseEndpoint = aws.String(*endpoint)
		}
	})

	store := poorlock.NewDynamoStore(client, *table, poorlock.WithSchema(poorlock.DynamoSchema()))
	locker := poorlock.New(store)
	count, err := worker.RunAll(ctx, locker, poorlock.MustKey("example:dynamodb"), *workers, *rounds)
	if err != nil {
		log.Fatal(err)
	}
	flushprint.Print("final count ", count, " want ", *workers * *rounds)
}
