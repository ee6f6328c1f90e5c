// Package memdb is an in-memory stand-in for the DynamoDB client, covering
// the request shapes the store issues. It backs unit tests and local
// development; it is not a general DynamoDB emulator.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client holds items per table, keyed by pk then sk.
type Client struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]map[string]types.AttributeValue

	// FailNextPut makes the next PutItem call fail with the given error.
	// Used to exercise critical-path error propagation.
	FailNextPut error
}

// New creates an empty Client.
func New() *Client {
	return &Client{
		tables: make(map[string]map[string]map[string]map[string]types.AttributeValue),
	}
}

func (c *Client) table(name string) map[string]map[string]map[string]types.AttributeValue {
	if c.tables[name] == nil {
		c.tables[name] = make(map[string]map[string]map[string]types.AttributeValue)
	}
	return c.tables[name]
}

func stringAttr(av types.AttributeValue) string {
	if v, ok := av.(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func keyOf(item map[string]types.AttributeValue) (string, string) {
	return stringAttr(item["pk"]), stringAttr(item["sk"])
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	dup := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		dup[k] = v
	}
	return dup
}

// GetItem implements store.DynamoAPI.
func (c *Client) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pk, sk := keyOf(params.Key)
	partition := c.table(*params.TableName)[pk]
	item, ok := partition[sk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

// PutItem implements store.DynamoAPI.
func (c *Client) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.FailNextPut; err != nil {
		c.FailNextPut = nil
		return nil, err
	}

	c.put(*params.TableName, params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (c *Client) put(table string, item map[string]types.AttributeValue) {
	pk, sk := keyOf(item)
	t := c.table(table)
	if t[pk] == nil {
		t[pk] = make(map[string]map[string]types.AttributeValue)
	}
	t[pk][sk] = copyItem(item)
}

// DeleteItem implements store.DynamoAPI.
func (c *Client) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pk, sk := keyOf(params.Key)
	if partition := c.table(*params.TableName)[pk]; partition != nil {
		delete(partition, sk)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

// UpdateItem implements store.DynamoAPI for the single-assignment
// "SET <attr> = <value>" expressions the store issues, honoring an
// attribute_not_exists condition when present.
func (c *Client) UpdateItem(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pk, sk := keyOf(params.Key)
	t := c.table(*params.TableName)
	if t[pk] == nil {
		t[pk] = make(map[string]map[string]types.AttributeValue)
	}
	item, ok := t[pk][sk]
	if !ok {
		item = copyItem(params.Key)
		t[pk][sk] = item
	}

	resolve := func(name string) string {
		if real, ok := params.ExpressionAttributeNames[name]; ok {
			return real
		}
		return name
	}

	if cond := params.ConditionExpression; cond != nil {
		expr := strings.TrimSpace(*cond)
		if strings.HasPrefix(expr, "attribute_not_exists(") {
			attr := resolve(strings.TrimSuffix(strings.TrimPrefix(expr, "attribute_not_exists("), ")"))
			if _, exists := item[attr]; exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}

	expr := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(*params.UpdateExpression), "SET"))
	for _, assign := range strings.Split(expr, ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			continue
		}
		attr := resolve(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		item[attr] = params.ExpressionAttributeValues[value]
	}

	return &dynamodb.UpdateItemOutput{}, nil
}

// Query implements store.DynamoAPI for the key conditions the store issues:
// bare partition, begins_with prefix, and BETWEEN range.
func (c *Client) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := params.ExpressionAttributeValues
	pk := stringAttr(values[":pk"])
	cond := *params.KeyConditionExpression

	var matches func(sk string) bool
	switch {
	case strings.Contains(cond, "begins_with"):
		prefix := stringAttr(values[":prefix"])
		matches = func(sk string) bool { return strings.HasPrefix(sk, prefix) }
	case strings.Contains(cond, "BETWEEN"):
		from, to := stringAttr(values[":from"]), stringAttr(values[":to"])
		matches = func(sk string) bool { return sk >= from && sk <= to }
	default:
		matches = func(string) bool { return true }
	}

	partition := c.table(*params.TableName)[pk]
	sks := make([]string, 0, len(partition))
	for sk := range partition {
		if matches(sk) {
			sks = append(sks, sk)
		}
	}
	sort.Strings(sks)

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks {
		out.Items = append(out.Items, copyItem(partition[sk]))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// BatchWriteItem implements store.DynamoAPI. Everything is processed in one
// round; UnprocessedItems is always empty.
func (c *Client) BatchWriteItem(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for table, requests := range params.RequestItems {
		for _, req := range requests {
			if req.PutRequest != nil {
				c.put(table, req.PutRequest.Item)
			}
			if req.DeleteRequest != nil {
				pk, sk := keyOf(req.DeleteRequest.Key)
				if partition := c.table(table)[pk]; partition != nil {
					delete(partition, sk)
				}
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}
