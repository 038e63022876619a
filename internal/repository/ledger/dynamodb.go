package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
)

const (
	// hashKeyAttribute is the single hash key of the ledger table.
	hashKeyAttribute = "ID"
	// tableActiveTimeout bounds the wait for a freshly created table.
	tableActiveTimeout = 2 * time.Minute
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoRepository.
type DynamoAPI interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoRepository stores ledger records in a DynamoDB table with hash key ID.
type DynamoRepository struct {
	// client is the DynamoDB API used for all calls.
	client DynamoAPI
	// table is the ledger table name.
	table string
}

// NewDynamoRepository creates a repository over table using client.
func NewDynamoRepository(client DynamoAPI, table string) *DynamoRepository {
	return &DynamoRepository{
		client: client,
		table:  table,
	}
}

// EnsureTable lists tables and creates the ledger table when it is absent,
// then waits until it becomes active.
func (r *DynamoRepository) EnsureTable(ctx context.Context) error {
	exists, err := r.tableExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	logger.InfoKV(ctx, "Creating ledger table", "table", r.table)

	//nolint:exhaustruct // Only the key schema is fixed; items are schemaless.
	_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(r.table),
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String(hashKeyAttribute),
			AttributeType: types.ScalarAttributeTypeS,
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String(hashKeyAttribute),
			KeyType:       types.KeyTypeHash,
		}},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", r.table, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(r.client)
	if err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)}, tableActiveTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", r.table, err)
	}

	return nil
}

func (r *DynamoRepository) tableExists(ctx context.Context) (bool, error) {
	paginator := dynamodb.NewListTablesPaginator(r.client, &dynamodb.ListTablesInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list tables: %w", err)
		}

		for _, name := range page.TableNames {
			if name == r.table {
				return true, nil
			}
		}
	}

	return false, nil
}

// Get queries the record of id.
func (r *DynamoRepository) Get(ctx context.Context, id release.Identity) (*release.Record, error) {
	output, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#id": hashKeyAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id.String()},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query ledger record %s: %w", id, err)
	}

	if len(output.Items) == 0 {
		return nil, ErrNotFound
	}

	var stored item
	if err = attributevalue.UnmarshalMap(output.Items[0], &stored); err != nil {
		return nil, fmt.Errorf("decode ledger record %s: %w", id, err)
	}

	return fromItem(&stored)
}

// Put overwrites the record of rec.ID.
func (r *DynamoRepository) Put(ctx context.Context, rec *release.Record) error {
	attributes, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("encode ledger record %s: %w", rec.ID, err)
	}

	if _, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      attributes,
	}); err != nil {
		return fmt.Errorf("put ledger record %s: %w", rec.ID, err)
	}

	return nil
}
