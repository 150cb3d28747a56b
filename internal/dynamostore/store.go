package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/roach88/retrievalstat/internal/ir"
)

// MaxTransactItems is the DynamoDB limit of items per transaction.
const MaxTransactItems = 100

// PartitionKey is the key attribute of metric rows.
const PartitionKey = "pk"

// ErrTransactionTooLarge is returned for transactions with more rows than
// MaxTransactItems. It wraps ir.ErrInvalidTransaction.
var ErrTransactionTooLarge = fmt.Errorf("%w: more than %d rows", ir.ErrInvalidTransaction, MaxTransactItems)

// API is the subset of the DynamoDB client the store calls.
type API interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Config holds DynamoDB client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default endpoint (for DynamoDB Local, LocalStack)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Store applies transactions with TransactWriteItems.
//
// Thread-safety: Store is safe for concurrent use if its API is.
type Store struct {
	api API
}

// New creates a store with a DynamoDB client built from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewWithAPI(dynamodb.NewFromConfig(awsCfg, ddbOpts...)), nil
}

// NewWithAPI creates a store over an existing client.
func NewWithAPI(api API) *Store {
	return &Store{api: api}
}

// ApplyIncrements submits tx as one TransactWriteItems call.
func (s *Store) ApplyIncrements(ctx context.Context, tx ir.Transaction) error {
	input, err := BuildInput(tx)
	if err != nil {
		return fmt.Errorf("apply increments: %w", err)
	}

	if _, err := s.api.TransactWriteItems(ctx, input); err != nil {
		return fmt.Errorf("apply increments: %w", classifyError(err))
	}
	return nil
}

// BuildInput renders tx as a TransactWriteItems request.
//
// Every row carries all six counters in a single ADD expression, e.g.
//
//	ADD count_requested :update_requested_count, size_requested :update_requested_size, ...
func BuildInput(tx ir.Transaction) (*dynamodb.TransactWriteItemsInput, error) {
	switch {
	case tx.Token == "" || len(tx.Token) > ir.TokenLength:
		return nil, fmt.Errorf("%w: request token must be 1-%d characters", ir.ErrInvalidTransaction, ir.TokenLength)
	case tx.Table == "":
		return nil, fmt.Errorf("%w: empty table name", ir.ErrInvalidTransaction)
	case len(tx.Updates) == 0:
		return nil, fmt.Errorf("%w: no row updates", ir.ErrInvalidTransaction)
	case len(tx.Updates) > MaxTransactItems:
		return nil, ErrTransactionTooLarge
	}

	expression := UpdateExpression()
	items := make([]types.TransactWriteItem, 0, len(tx.Updates))
	for _, u := range tx.Updates {
		if u.WorkflowRun == "" {
			return nil, fmt.Errorf("%w: empty workflow run", ir.ErrInvalidTransaction)
		}
		if !u.Counters.NonNegative() {
			return nil, fmt.Errorf("%w: negative increment for %s", ir.ErrInvalidTransaction, u.WorkflowRun)
		}
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(tx.Table),
				Key: map[string]types.AttributeValue{
					PartitionKey: &types.AttributeValueMemberS{Value: u.WorkflowRun},
				},
				UpdateExpression:          aws.String(expression),
				ExpressionAttributeValues: expressionValues(u.Counters),
			},
		})
	}

	return &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(tx.Token),
	}, nil
}

// UpdateExpression is the ADD expression shared by every row.
func UpdateExpression() string {
	parts := make([]string, 0, 2*len(ir.CountedStatuses))
	for _, s := range ir.CountedStatuses {
		parts = append(parts,
			ir.CountAttribute(s)+" "+placeholder(s, "count"),
			ir.SizeAttribute(s)+" "+placeholder(s, "size"),
		)
	}
	return "ADD " + strings.Join(parts, ", ")
}

func placeholder(s ir.Status, kind string) string {
	return ":update_" + string(s) + "_" + kind
}

func expressionValues(c ir.Counters) map[string]types.AttributeValue {
	values := make(map[string]types.AttributeValue, 2*len(ir.CountedStatuses))
	for _, s := range ir.CountedStatuses {
		count, size := c.Get(s)
		values[placeholder(s, "count")] = &types.AttributeValueMemberN{Value: strconv.FormatInt(count, 10)}
		values[placeholder(s, "size")] = &types.AttributeValueMemberN{Value: strconv.FormatInt(size, 10)}
	}
	return values
}

// classifyError maps DynamoDB errors onto the store error contract.
// Anything not recognised as permanent stays retryable.
func classifyError(err error) error {
	var mismatch *types.IdempotentParameterMismatchException
	if errors.As(err, &mismatch) {
		return fmt.Errorf("%w: %v", ir.ErrTokenConflict, err)
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ir.ErrInvalidTransaction, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		return fmt.Errorf("%w: %v", ir.ErrInvalidTransaction, err)
	}

	return err
}
