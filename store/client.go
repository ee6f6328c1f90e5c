package store

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewDynamoClient builds a DynamoDB client from the ambient AWS
// configuration (environment, shared config files, instance role).
// optFns pass through to config loading, e.g.
// awsconfig.WithSharedConfigProfile or awsconfig.WithRegion.
func NewDynamoClient(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}
