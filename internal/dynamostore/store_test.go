package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrievalstat/internal/ir"
)

type fakeAPI struct {
	inputs []*dynamodb.TransactWriteItemsInput
	err    error
}

func (f *fakeAPI) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func sampleTx() ir.Transaction {
	return ir.Transaction{
		Token: "30417bf6674ea88e2936bc4a7cb68ef3ff3a",
		Table: "metric-table",
		Updates: []ir.RowIncrement{
			{WorkflowRun: "run-1", Counters: ir.Counters{StagedCount: 2, StagedSize: 4096}},
			{WorkflowRun: "run-2", Counters: ir.Counters{RequestedCount: 1, RequestedSize: 10}},
		},
	}
}

func TestUpdateExpression(t *testing.T) {
	assert.Equal(t,
		"ADD count_requested :update_requested_count, size_requested :update_requested_size, "+
			"count_staged :update_staged_count, size_staged :update_staged_size, "+
			"count_downloaded :update_downloaded_count, size_downloaded :update_downloaded_size",
		UpdateExpression())
}

func TestBuildInput(t *testing.T) {
	input, err := BuildInput(sampleTx())
	require.NoError(t, err)

	assert.Equal(t, "30417bf6674ea88e2936bc4a7cb68ef3ff3a", aws.ToString(input.ClientRequestToken))
	require.Len(t, input.TransactItems, 2)

	update := input.TransactItems[0].Update
	require.NotNil(t, update)
	assert.Equal(t, "metric-table", aws.ToString(update.TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "run-1"}, update.Key["pk"])
	assert.Equal(t, UpdateExpression(), aws.ToString(update.UpdateExpression))
	assert.Equal(t, map[string]types.AttributeValue{
		":update_requested_count":  &types.AttributeValueMemberN{Value: "0"},
		":update_requested_size":   &types.AttributeValueMemberN{Value: "0"},
		":update_staged_count":     &types.AttributeValueMemberN{Value: "2"},
		":update_staged_size":      &types.AttributeValueMemberN{Value: "4096"},
		":update_downloaded_count": &types.AttributeValueMemberN{Value: "0"},
		":update_downloaded_size":  &types.AttributeValueMemberN{Value: "0"},
	}, update.ExpressionAttributeValues)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "run-2"}, input.TransactItems[1].Update.Key["pk"])
}

func TestBuildInput_TooLarge(t *testing.T) {
	tx := sampleTx()
	tx.Updates = nil
	for i := 0; i <= MaxTransactItems; i++ {
		tx.Updates = append(tx.Updates, ir.RowIncrement{WorkflowRun: fmt.Sprintf("run-%03d", i)})
	}

	_, err := BuildInput(tx)
	assert.ErrorIs(t, err, ErrTransactionTooLarge)
	assert.ErrorIs(t, err, ir.ErrInvalidTransaction)

	tx.Updates = tx.Updates[:MaxTransactItems]
	_, err = BuildInput(tx)
	assert.NoError(t, err)
}

func TestBuildInput_Invalid(t *testing.T) {
	noTable := sampleTx()
	noTable.Table = ""
	negative := sampleTx()
	negative.Updates[0].Counters.RequestedSize = -1
	longToken := sampleTx()
	longToken.Token += "x"

	for name, tx := range map[string]ir.Transaction{
		"no table":   noTable,
		"negative":   negative,
		"long token": longToken,
		"no updates": {Token: "t", Table: "x"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BuildInput(tx)
			assert.ErrorIs(t, err, ir.ErrInvalidTransaction)
		})
	}
}

func TestApplyIncrements_SendsOneTransaction(t *testing.T) {
	api := &fakeAPI{}
	s := NewWithAPI(api)

	require.NoError(t, s.ApplyIncrements(context.Background(), sampleTx()))
	require.Len(t, api.inputs, 1)
	assert.Len(t, api.inputs[0].TransactItems, 2)
}

func TestApplyIncrements_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		target  error
		retried bool
	}{
		{
			name:   "idempotent parameter mismatch",
			err:    &types.IdempotentParameterMismatchException{Message: aws.String("token reused")},
			target: ir.ErrTokenConflict,
		},
		{
			name:   "missing table",
			err:    &types.ResourceNotFoundException{Message: aws.String("no table")},
			target: ir.ErrInvalidTransaction,
		},
		{
			name:   "validation",
			err:    &smithy.GenericAPIError{Code: "ValidationException", Message: "bad expression"},
			target: ir.ErrInvalidTransaction,
		},
		{
			name:    "transaction cancelled",
			err:     &types.TransactionCanceledException{Message: aws.String("conflict")},
			retried: true,
		},
		{
			name:    "throttled",
			err:     &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")},
			retried: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewWithAPI(&fakeAPI{err: tt.err})
			err := s.ApplyIncrements(context.Background(), sampleTx())

			require.Error(t, err)
			if tt.retried {
				assert.False(t, errors.Is(err, ir.ErrTokenConflict))
				assert.False(t, errors.Is(err, ir.ErrInvalidTransaction))
				assert.ErrorIs(t, err, tt.err)
				return
			}
			assert.ErrorIs(t, err, tt.target)
		})
	}
}
