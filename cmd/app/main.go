package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/engine"
	"github.com/fvkry/custody/pkg/events"
	"github.com/fvkry/custody/pkg/gate"
	"github.com/fvkry/custody/pkg/handlers"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/query"
	recordstore "github.com/fvkry/custody/pkg/storage/dynamodb"
	transportstore "github.com/fvkry/custody/pkg/transport/dynamodb"
	"github.com/joho/godotenv"
)

// Config is the service configuration, loaded from the environment.
type Config struct {
	HTTPPort             string `env:"HTTP_PORT" envDefault:"8080"`
	AccountsTableName    string `env:"DYNAMODB_ACCOUNTS_TABLE_NAME,required"`
	RecordsTableName     string `env:"DYNAMODB_RECORDS_TABLE_NAME,required"`
	EventsQueueURL       string `env:"SQS_EVENTS_QUEUE_URL"`
	AdministratorAddress string `env:"ADMINISTRATOR_ADDRESS,required"`
	MaxSubVaults         int    `env:"MAX_SUB_VAULTS" envDefault:"50"`
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse configuration: %v", err)
	}
	if !common.IsHexAddress(cfg.AdministratorAddress) {
		log.Fatalf("ADMINISTRATOR_ADDRESS is not a valid hex address: %q", cfg.AdministratorAddress)
	}

	// AWS Session
	awsCfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	dbClient := awsdynamodb.NewFromConfig(awsCfg)
	records := recordstore.New(dbClient, cfg.RecordsTableName)
	accounts := transportstore.New(dbClient, cfg.AccountsTableName)

	// Events go to SQS when a queue is configured; otherwise they are
	// dropped.
	var publisher events.Publisher = &events.NoOpPublisher{}
	if cfg.EventsQueueURL != "" {
		publisher = events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	store := ledger.NewStore(cfg.MaxSubVaults)
	accessGate := gate.New(common.HexToAddress(cfg.AdministratorAddress))
	eng := engine.New(store, accessGate, accounts, records, publisher, logger)
	facade := query.NewFacade(store, records)

	router := handlers.NewRouter(eng, facade, logger)

	log.Printf("Starting server on port %s", cfg.HTTPPort)

	if err := http.ListenAndServe(":"+cfg.HTTPPort, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
