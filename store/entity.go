package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key identifies a record in the table.
type Key struct {
	PK string
	SK string
}

// Record is the base interface for all storable types.
type Record interface {
	// RecordKey returns the partition and sort key for this record.
	RecordKey() Key

	// EntityType returns the entity type tag (e.g., "device").
	EntityType() string
}

// Item is a retrieved record with its managed fields decoded.
type Item struct {
	// Raw is the raw DynamoDB item.
	Raw map[string]types.AttributeValue

	// Key is the record's partition and sort key.
	Key Key

	// EntityType is the entity type tag.
	EntityType string

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string

	// DeletedAt is the tombstone timestamp in epoch seconds (0 = active).
	DeletedAt int64
}

// Deleted reports whether the item carries a tombstone.
func (i *Item) Deleted() bool {
	return i.DeletedAt != 0
}

// FilterActive returns the items that do not carry a tombstone.
func FilterActive(items []*Item) []*Item {
	active := make([]*Item, 0, len(items))
	for _, it := range items {
		if !it.Deleted() {
			active = append(active, it)
		}
	}
	return active
}

// Step is one operation inside a Transaction sequence.
// Exactly one field must be set.
type Step struct {
	// Put writes the record, replacing any existing one.
	Put Record

	// SoftDelete stamps a tombstone on the keyed record.
	SoftDelete *Key

	// HardDelete physically removes the keyed record.
	HardDelete *Key
}

// DynamoAPI is the subset of the DynamoDB client the store uses.
// Tests substitute an in-memory implementation.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}
