package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const tableActiveTimeout = 2 * time.Minute

// EnsureTables creates any of the three tables that do not exist yet. Images and
// survey responses get the SessionIdIndex GSI; sessions get TTL on "ttl".
func (c *Client) EnsureTables(ctx context.Context) error {
	existing, err := c.listTableNames(ctx)
	if err != nil {
		return fmt.Errorf("repository: EnsureTables list: %w", err)
	}

	specs := []struct {
		name       string
		key        string
		withIndex  bool
		withExpiry bool
	}{
		{name: c.tables.Sessions, key: "sessionId", withExpiry: true},
		{name: c.tables.Images, key: "imageId", withIndex: true},
		{name: c.tables.Surveys, key: "responseId", withIndex: true},
	}

	for _, s := range specs {
		if existing[s.name] {
			continue
		}
		if _, err := c.api.CreateTable(ctx, createTableInput(s.name, s.key, s.withIndex)); err != nil {
			return fmt.Errorf("repository: EnsureTables create %s: %w", s.name, err)
		}
		waiter := dynamodb.NewTableExistsWaiter(c.api)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.name)}, tableActiveTimeout); err != nil {
			return fmt.Errorf("repository: EnsureTables wait %s: %w", s.name, err)
		}
		if s.withExpiry {
			if _, err := c.api.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
				TableName: aws.String(s.name),
				TimeToLiveSpecification: &types.TimeToLiveSpecification{
					AttributeName: aws.String("ttl"),
					Enabled:       aws.Bool(true),
				},
			}); err != nil {
				return fmt.Errorf("repository: EnsureTables ttl %s: %w", s.name, err)
			}
		}
	}
	return nil
}

func (c *Client) listTableNames(ctx context.Context) (map[string]bool, error) {
	names := map[string]bool{}
	in := &dynamodb.ListTablesInput{}
	for {
		out, err := c.api.ListTables(ctx, in)
		if err != nil {
			return nil, err
		}
		if out == nil {
			break
		}
		for _, n := range out.TableNames {
			names[n] = true
		}
		if out.LastEvaluatedTableName == nil {
			break
		}
		in.ExclusiveStartTableName = out.LastEvaluatedTableName
	}
	return names, nil
}

func createTableInput(name, key string, withIndex bool) *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(key), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	if withIndex {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String("sessionId"),
			AttributeType: types.ScalarAttributeTypeS,
		})
		in.GlobalSecondaryIndexes = []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(sessionIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("sessionId"), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		}
	}
	return in
}
