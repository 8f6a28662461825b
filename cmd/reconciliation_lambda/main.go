package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/fvkry/custody/pkg/events"
	"github.com/fvkry/custody/pkg/reconcile"
	"github.com/fvkry/custody/pkg/storage"
	recordstore "github.com/fvkry/custody/pkg/storage/dynamodb"
	"github.com/joho/godotenv"
)

var records storage.RecordStore
var publisher events.Publisher

func init() {
	// Load environment variables for local testing.
	godotenv.Load()

	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	recordsTable := os.Getenv("DYNAMODB_RECORDS_TABLE_NAME")
	if recordsTable == "" {
		log.Fatal("DYNAMODB_RECORDS_TABLE_NAME environment variable not set")
	}
	records = recordstore.New(awsdynamodb.NewFromConfig(cfg), recordsTable)

	queueURL := os.Getenv("SQS_EVENTS_QUEUE_URL")
	if queueURL == "" {
		log.Fatal("SQS_EVENTS_QUEUE_URL environment variable not set")
	}
	publisher = events.NewSQSPublisher(sqs.NewFromConfig(cfg), queueURL)
}

// HandleRequest is triggered by an EventBridge Schedule. It replays the
// transaction log and notifies off-ledger consumers of matured locks that
// still hold value.
func HandleRequest(ctx context.Context) error {
	log.Println("Starting reconciliation of matured locks...")

	all, err := records.ListAll(ctx)
	if err != nil {
		log.Printf("ERROR: failed to list transaction records: %v", err)
		return err
	}

	matured := reconcile.MaturedLocks(all, time.Now())
	if len(matured) == 0 {
		log.Println("No matured locks found.")
		return nil
	}

	log.Printf("Found %d matured locks. Publishing notifications...", len(matured))

	for _, ev := range matured {
		if err := publisher.Publish(ctx, ev); err != nil {
			log.Printf("ERROR: failed to publish maturity notice for vault %d asset %d: %v",
				ev.VaultID, ev.AssetID, err)
			// Continue to the next lock, don't let one failure stop the whole batch.
			continue
		}
	}

	log.Println("Reconciliation finished.")
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
