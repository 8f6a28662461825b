package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/fvkry/custody/pkg/storage"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
// Narrowed for mocking.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements storage.RecordStore on a DynamoDB table keyed by
// (owner#vault, timestamp#id).
type Store struct {
	Client           DynamoDBAPI
	RecordsTableName string
}

// New creates a new Store.
func New(client DynamoDBAPI, recordsTable string) *Store {
	return &Store{
		Client:           client,
		RecordsTableName: recordsTable,
	}
}

// Make sure we conform to the interface
var _ storage.RecordStore = (*Store)(nil)
