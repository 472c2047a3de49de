package poorlock

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoSchema returns the attribute names used by tables created for the
// first versions of the lock, which keyed on hash_key and flagged locked.
func DynamoSchema() Schema {
	return Schema{
		IDField:       "hash_key",
		StatusField:   "locked",
		LockedAtField: "locked_at",
	}
}

// DynamoStore keeps one item per lock in a table whose partition key is the
// schema's id attribute (type S). The table itself is provisioned elsewhere.
type DynamoStore struct {
	client DynamoDBAPI
	table  string
	opts   storeOptions
}

var (
	_ LockStore     = (*DynamoStore)(nil)
	_ SecondClaimer = (*DynamoStore)(nil)
)

func NewDynamoStore(client DynamoDBAPI, table string, opts ...StoreOption) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
		opts:   newStoreOptions(opts),
	}
}

func (s *DynamoStore) TryAcquire(ctx context.Context, key Key) error {
	r := newRecord(key, StatusFirst, s.opts.now())
	item := s.keyItem(key)
	item[s.opts.schema.StatusField] = number(int64(r.Status))
	item[s.opts.schema.LockedAtField] = number(r.LockedAt)

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#status)"),
		ExpressionAttributeNames: map[string]string{
			"#status": s.opts.schema.StatusField,
		},
	})
	return s.translate(opAcquire, key, err)
}

func (s *DynamoStore) TryAcquireSecond(ctx context.Context, key Key) error {
	r := newRecord(key, StatusSecond, s.opts.now())
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.keyItem(key),
		UpdateExpression:    aws.String("SET #status = :next, #locked_at = :now"),
		ConditionExpression: aws.String("#status = :prev"),
		ExpressionAttributeNames: map[string]string{
			"#status":    s.opts.schema.StatusField,
			"#locked_at": s.opts.schema.LockedAtField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":next": number(int64(r.Status)),
			":prev": number(int64(StatusFirst)),
			":now":  number(r.LockedAt),
		},
	})
	return s.translate(opAcquireSecond, key, err)
}

func (s *DynamoStore) Release(ctx context.Context, key Key) error {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          s.keyItem(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		s.opts.logger.Error("dynamodb delete failed", "key", key.String(), "err", err)
		return accessError(opRelease, key, err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return alreadyUnlocked(key)
	}
	return nil
}

func (s *DynamoStore) keyItem(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.opts.schema.IDField: &types.AttributeValueMemberS{Value: key.String()},
	}
}

func (s *DynamoStore) translate(op string, key Key, err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return alreadyLocked(op, key)
	}
	s.opts.logger.Error("dynamodb write failed", "op", op, "key", key.String(), "err", err)
	return accessError(op, key, err)
}

func number(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
