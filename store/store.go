package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// batchMax is the DynamoDB BatchWriteItem request limit.
const batchMax = 25

// Store provides single-table operations over a DynamoDB-compatible client.
type Store struct {
	client DynamoAPI
	config Config
}

// New creates a new Store instance.
func New(client DynamoAPI, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Get retrieves a record by key, returning ErrNotFound if missing or tombstoned.
func (s *Store) Get(ctx context.Context, key Key) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       marshalKey(key),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	item := unmarshalItem(result.Item)
	if item.Deleted() {
		return nil, ErrNotFound
	}
	return item, nil
}

// Exists reports whether an active (non-tombstoned) record exists at key.
func (s *Store) Exists(ctx context.Context, key Key) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put writes a record, replacing any existing one at the same key.
// updated_at is stamped on every write; created_at only when the record
// doesn't carry one (first write or callers that round-trip the field).
func (s *Store) Put(ctx context.Context, rec Record) error {
	item, err := s.marshalRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.TableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", rec.RecordKey().PK, rec.RecordKey().SK, err)
	}
	return nil
}

// QueryByPartition returns all records in a partition, tombstoned included.
func (s *Store) QueryByPartition(ctx context.Context, pk string) ([]*Item, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	})
}

// QueryBySortPrefix returns all records in a partition whose sort key starts
// with prefix, tombstoned included.
func (s *Store) QueryBySortPrefix(ctx context.Context, pk, prefix string) ([]*Item, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pk},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	})
}

// QueryBySortRange returns all records in a partition whose sort key falls in
// [from, to], tombstoned included.
func (s *Store) QueryBySortRange(ctx context.Context, pk, from, to string) ([]*Item, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: pk},
			":from": &types.AttributeValueMemberS{Value: from},
			":to":   &types.AttributeValueMemberS{Value: to},
		},
	})
}

func (s *Store) query(ctx context.Context, input *dynamodb.QueryInput) ([]*Item, error) {
	var items []*Item
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			items = append(items, unmarshalItem(raw))
		}
	}
	return items, nil
}

// BatchWrite writes records in chunks of 25, retrying unprocessed items.
func (s *Store) BatchWrite(ctx context.Context, recs []Record) error {
	var requests []types.WriteRequest
	for _, rec := range recs {
		item, err := s.marshalRecord(rec)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}
	return s.batchWrite(ctx, requests)
}

// BatchHardDelete physically removes records in chunks of 25.
// Used by cleanup paths; deletes are idempotent.
func (s *Store) BatchHardDelete(ctx context.Context, keys []Key) error {
	var requests []types.WriteRequest
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: marshalKey(key)},
		})
	}
	return s.batchWrite(ctx, requests)
}

func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for len(requests) > 0 {
		chunk := requests
		if len(chunk) > batchMax {
			chunk = chunk[:batchMax]
		}
		requests = requests[len(chunk):]

		pending := chunk
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > s.config.BatchRetries {
				return fmt.Errorf("batch write: %d items unprocessed after %d retries", len(pending), s.config.BatchRetries)
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					s.config.TableName: pending,
				},
			})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = out.UnprocessedItems[s.config.TableName]
		}
	}
	return nil
}

// SoftDelete stamps a tombstone on the keyed record. A second call is a
// no-op and never undeletes: the conditional update only fires when no
// tombstone is present, and the condition failure is swallowed.
func (s *Store) SoftDelete(ctx context.Context, key Key) error {
	now := time.Now()

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.TableName),
		Key:                 marshalKey(key),
		UpdateExpression:    aws.String("SET #deleted_at = :now"),
		ConditionExpression: aws.String("attribute_not_exists(#deleted_at)"),
		ExpressionAttributeNames: map[string]string{
			"#deleted_at": "deleted_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(now.Unix(), 10),
			},
		},
	})

	// Already tombstoned.
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// HardDelete physically removes the keyed record. Idempotent.
func (s *Store) HardDelete(ctx context.Context, key Key) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       marshalKey(key),
	})
	return err
}

// Transaction applies steps strictly in order, stopping at the first
// failure. This is a sequencing convenience, not an atomic transaction:
// earlier steps are not undone when a later step fails.
func (s *Store) Transaction(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		var err error
		switch {
		case step.Put != nil:
			err = s.Put(ctx, step.Put)
		case step.SoftDelete != nil:
			err = s.SoftDelete(ctx, *step.SoftDelete)
		case step.HardDelete != nil:
			err = s.HardDelete(ctx, *step.HardDelete)
		default:
			err = ErrEmptyStep
		}
		if err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrTransactionStep, i, err)
		}
	}
	return nil
}

// marshalRecord converts a record to a DynamoDB item with managed fields set.
func (s *Store) marshalRecord(rec Record) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", rec.EntityType(), err)
	}

	key := rec.RecordKey()
	now := time.Now().UTC().Format(time.RFC3339)

	item["pk"] = &types.AttributeValueMemberS{Value: key.PK}
	item["sk"] = &types.AttributeValueMemberS{Value: key.SK}
	item["entity_type"] = &types.AttributeValueMemberS{Value: rec.EntityType()}
	if isEmptyString(item["created_at"]) {
		item["created_at"] = &types.AttributeValueMemberS{Value: now}
	}
	item["updated_at"] = &types.AttributeValueMemberS{Value: now}

	return item, nil
}

func isEmptyString(av types.AttributeValue) bool {
	if av == nil {
		return true
	}
	v, ok := av.(*types.AttributeValueMemberS)
	return ok && v.Value == ""
}

// marshalKey converts a Key to DynamoDB key attributes.
func marshalKey(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: key.PK},
		"sk": &types.AttributeValueMemberS{Value: key.SK},
	}
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}

	if v, ok := raw["pk"].(*types.AttributeValueMemberS); ok {
		item.Key.PK = v.Value
	}
	if v, ok := raw["sk"].(*types.AttributeValueMemberS); ok {
		item.Key.SK = v.Value
	}
	if v, ok := raw["entity_type"].(*types.AttributeValueMemberS); ok {
		item.EntityType = v.Value
	}
	if v, ok := raw["created_at"].(*types.AttributeValueMemberS); ok {
		item.CreatedAt = v.Value
	}
	if v, ok := raw["updated_at"].(*types.AttributeValueMemberS); ok {
		item.UpdatedAt = v.Value
	}
	if v, ok := raw["deleted_at"].(*types.AttributeValueMemberN); ok {
		item.DeletedAt, _ = strconv.ParseInt(v.Value, 10, 64)
	}

	return item
}

// Unmarshal decodes the item's raw attributes into out.
func (i *Item) Unmarshal(out any) error {
	return attributevalue.UnmarshalMap(i.Raw, out)
}
