package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// recordItem is the flat DynamoDB shape of a TransactionRecord. Addresses
// and amounts are stored as strings so the item round-trips without custom
// marshalers.
type recordItem struct {
	OwnerVault  string `dynamodbav:"owner_vault"`
	SortKey     string `dynamodbav:"sort_key"`
	ID          string `dynamodbav:"id"`
	Owner       string `dynamodbav:"owner"`
	VaultID     uint64 `dynamodbav:"vault_id"`
	AssetID     int    `dynamodbav:"asset_id"`
	Op          string `dynamodbav:"op"`
	Token       string `dynamodbav:"token"`
	Amount      string `dynamodbav:"amount"`
	Title       string `dynamodbav:"title"`
	LockEndTime int64  `dynamodbav:"lock_end_time"`
	Timestamp   int64  `dynamodbav:"timestamp"`
}

func ownerVaultKey(owner common.Address, vaultID uint64) string {
	return fmt.Sprintf("%s#%d", owner.Hex(), vaultID)
}

func toRecordItem(rec *models.TransactionRecord) recordItem {
	return recordItem{
		OwnerVault:  ownerVaultKey(rec.Owner, rec.VaultID),
		SortKey:     fmt.Sprintf("%d#%s", rec.Timestamp.UnixNano(), rec.ID),
		ID:          rec.ID.String(),
		Owner:       rec.Owner.Hex(),
		VaultID:     rec.VaultID,
		AssetID:     rec.AssetID,
		Op:          string(rec.Op),
		Token:       rec.Token.Hex(),
		Amount:      rec.Amount.String(),
		Title:       rec.Title,
		LockEndTime: rec.LockEndTime.Unix(),
		Timestamp:   rec.Timestamp.UnixNano(),
	}
}

func fromRecordItem(item *recordItem) (models.TransactionRecord, error) {
	id, err := uuid.Parse(item.ID)
	if err != nil {
		return models.TransactionRecord{}, fmt.Errorf("failed to parse record id %q: %w", item.ID, err)
	}
	amount, err := decimal.NewFromString(item.Amount)
	if err != nil {
		return models.TransactionRecord{}, fmt.Errorf("failed to parse record amount %q: %w", item.Amount, err)
	}
	return models.TransactionRecord{
		ID:          id,
		Owner:       common.HexToAddress(item.Owner),
		VaultID:     item.VaultID,
		AssetID:     item.AssetID,
		Op:          models.RecordOp(item.Op),
		Token:       common.HexToAddress(item.Token),
		Amount:      amount,
		Title:       item.Title,
		LockEndTime: time.Unix(item.LockEndTime, 0).UTC(),
		Timestamp:   time.Unix(0, item.Timestamp).UTC(),
	}, nil
}

// AppendRecord writes one immutable log entry.
func (s *Store) AppendRecord(ctx context.Context, rec *models.TransactionRecord) error {
	item, err := attributevalue.MarshalMap(toRecordItem(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal transaction record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.RecordsTableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sort_key)"), // The log is append-only.
	}

	if _, err := s.Client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to append transaction record to DynamoDB: %w", err)
	}
	return nil
}

// ListByVault retrieves every record for (owner, vaultID) in append order.
func (s *Store) ListByVault(ctx context.Context, owner common.Address, vaultID uint64) ([]models.TransactionRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.RecordsTableName),
		KeyConditionExpression: aws.String("owner_vault = :ov"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ov": &types.AttributeValueMemberS{Value: ownerVaultKey(owner, vaultID)},
		},
		ScanIndexForward: aws.Bool(true),
	}

	var records []models.TransactionRecord
	for {
		page, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query transaction records: %w", err)
		}
		parsed, err := unmarshalRecords(page.Items)
		if err != nil {
			return nil, err
		}
		records = append(records, parsed...)

		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return records, nil
}

// ListAll scans the whole log table. Reconciliation only.
func (s *Store) ListAll(ctx context.Context) ([]models.TransactionRecord, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.RecordsTableName),
	}

	var records []models.TransactionRecord
	for {
		page, err := s.Client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction records: %w", err)
		}
		parsed, err := unmarshalRecords(page.Items)
		if err != nil {
			return nil, err
		}
		records = append(records, parsed...)

		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return records, nil
}

func unmarshalRecords(items []map[string]types.AttributeValue) ([]models.TransactionRecord, error) {
	records := make([]models.TransactionRecord, 0, len(items))
	for _, raw := range items {
		var item recordItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction record: %w", err)
		}
		rec, err := fromRecordItem(&item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
