package poorlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo understands the expressions DynamoStore sends.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := in.Item["id"].(*types.AttributeValueMemberS).Value
	if aws.ToString(in.ConditionExpression) != "attribute_not_exists(#status)" {
		return nil, errors.New("unexpected condition " + aws.ToString(in.ConditionExpression))
	}
	if cur, ok := f.items[id]; ok {
		if _, held := cur[in.ExpressionAttributeNames["#status"]]; held {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := in.Key["id"].(*types.AttributeValueMemberS).Value
	status := in.ExpressionAttributeNames["#status"]
	prev := in.ExpressionAttributeValues[":prev"].(*types.AttributeValueMemberN).Value

	cur, ok := f.items[id]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	n, isN := cur[status].(*types.AttributeValueMemberN)
	if !isN || n.Value != prev {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	cur[status] = in.ExpressionAttributeValues[":next"]
	cur[in.ExpressionAttributeNames["#locked_at"]] = in.ExpressionAttributeValues[":now"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := in.Key["id"].(*types.AttributeValueMemberS).Value
	prior := f.items[id]
	delete(f.items, id)
	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = prior
	}
	return out, nil
}

func TestDynamoStoreContract(t *testing.T) {
	testStoreContract(t, NewDynamoStore(newFakeDynamo(), "poor-locker-test-lock-table"))
}

func TestDynamoStoreItem(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "locks", WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	ctx := context.Background()

	require.NoError(t, store.TryAcquire(ctx, MustKey("job")))
	item := fake.items["job"]
	assert.Equal(t, "1", item["status"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "1700000000", item["locked_at"].(*types.AttributeValueMemberN).Value)

	require.NoError(t, store.TryAcquireSecond(ctx, MustKey("job")))
	assert.Equal(t, "2", fake.items["job"]["status"].(*types.AttributeValueMemberN).Value)
}

func TestDynamoStoreAccessError(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("operation error DynamoDB: PutItem, exceeded maximum number of attempts")
	store := NewDynamoStore(fake, "locks")
	ctx := context.Background()

	for _, err := range []error{
		store.TryAcquire(ctx, MustKey("a")),
		store.TryAcquireSecond(ctx, MustKey("a")),
		store.Release(ctx, MustKey("a")),
	} {
		assert.True(t, IsAccess(err), "got %v", err)
		assert.False(t, IsAlreadyLocked(err))
		assert.ErrorIs(t, err, fake.err)
	}
}

func TestDynamoSchema(t *testing.T) {
	s := DynamoSchema()
	assert.Equal(t, "hash_key", s.IDField)
	assert.Equal(t, "locked", s.StatusField)
}
