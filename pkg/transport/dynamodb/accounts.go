package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/transport"
	"github.com/shopspring/decimal"
)

// custodyAccount is the omnibus row holding everything currently in custody,
// one row per token.
const custodyAccount = "CUSTODY"

// DynamoDBAPI is the subset of the DynamoDB client used by the transport.
type DynamoDBAPI interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Transport implements transport.AssetTransport against a DynamoDB accounts
// table keyed by (account, token). Debit and credit land in one
// TransactWriteItems call, so a pull or push either fully applies or not at
// all.
type Transport struct {
	Client            DynamoDBAPI
	AccountsTableName string
}

// New creates a new Transport.
func New(client DynamoDBAPI, accountsTable string) *Transport {
	return &Transport{
		Client:            client,
		AccountsTableName: accountsTable,
	}
}

// Make sure we conform to the interface
var _ transport.AssetTransport = (*Transport)(nil)

// PullIn debits the external account and credits the custody row.
func (t *Transport) PullIn(ctx context.Context, token common.Address, from common.Address, amount decimal.Decimal) error {
	return t.move(ctx, token, from.Hex(), custodyAccount, amount)
}

// PushOut debits the custody row and credits the external account.
func (t *Transport) PushOut(ctx context.Context, token common.Address, to common.Address, amount decimal.Decimal) error {
	return t.move(ctx, token, custodyAccount, to.Hex(), amount)
}

// move atomically transfers amount of token between two account rows. The
// debit is conditioned on sufficient balance; the credit upserts.
func (t *Transport) move(ctx context.Context, token common.Address, debitAccount, creditAccount string, amount decimal.Decimal) error {
	amountAV := &types.AttributeValueMemberN{Value: amount.String()}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: aws.String(t.AccountsTableName),
					Key: map[string]types.AttributeValue{
						"account": &types.AttributeValueMemberS{Value: debitAccount},
						"token":   &types.AttributeValueMemberS{Value: token.Hex()},
					},
					UpdateExpression:    aws.String("SET balance = balance - :amount"),
					ConditionExpression: aws.String("balance >= :amount"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":amount": amountAV,
					},
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(t.AccountsTableName),
					Key: map[string]types.AttributeValue{
						"account": &types.AttributeValueMemberS{Value: creditAccount},
						"token":   &types.AttributeValueMemberS{Value: token.Hex()},
					},
					UpdateExpression: aws.String("ADD balance :amount"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":amount": amountAV,
					},
				},
			},
		},
	}

	if _, err := t.Client.TransactWriteItems(ctx, input); err != nil {
		var txc *types.TransactionCanceledException
		if errors.As(err, &txc) {
			for _, reason := range txc.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return fmt.Errorf("debit of %s %s from %s: %w",
						amount, token.Hex(), debitAccount, transport.ErrInsufficientFunds)
				}
			}
		}
		return fmt.Errorf("failed to execute account transfer: %w", err)
	}
	return nil
}

// Balance reads an account's balance for a token. Missing rows count as zero.
func (t *Transport) Balance(ctx context.Context, token common.Address, account string) (decimal.Decimal, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(t.AccountsTableName),
		Key: map[string]types.AttributeValue{
			"account": &types.AttributeValueMemberS{Value: account},
			"token":   &types.AttributeValueMemberS{Value: token.Hex()},
		},
	}

	out, err := t.Client.GetItem(ctx, input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account balance: %w", err)
	}
	if out.Item == nil {
		return decimal.Zero, nil
	}

	raw, ok := out.Item["balance"].(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s has no numeric balance attribute", account)
	}
	balance, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse account balance %q: %w", raw.Value, err)
	}
	return balance, nil
}
