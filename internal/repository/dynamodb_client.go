package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const sessionIndex = "SessionIdIndex"

var (
	// ErrNotFound is returned when a record does not exist (or a session has expired).
	ErrNotFound = errors.New("repository: not found")
	// ErrConditionFailed is returned when a guarded write sees an unexpected prior state.
	ErrConditionFailed = errors.New("repository: condition failed")
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	ListTables(ctx context.Context, in *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Tables names the three record collections.
type Tables struct {
	Sessions string
	Images   string
	Surveys  string
}

// TablesFromPrefix derives the default table names for a namespace.
func TablesFromPrefix(prefix string) Tables {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "-")
	return Tables{
		Sessions: prefix + "-Sessions",
		Images:   prefix + "-Images",
		Surveys:  prefix + "-SurveyResponses",
	}
}

func (t Tables) validate() error {
	if strings.TrimSpace(t.Sessions) == "" || strings.TrimSpace(t.Images) == "" || strings.TrimSpace(t.Surveys) == "" {
		return errors.New("repository: table names must not be empty")
	}
	return nil
}

// Client wraps the DynamoDB tables backing sessions, images and survey responses.
type Client struct {
	api          dynamodbAPI
	tables       Tables
	createTables bool

	connMu    sync.Mutex
	connected bool
}

type Option func(*Client)

// WithTableCreation makes EnsureConnected create missing tables (local development).
func WithTableCreation(enabled bool) Option {
	return func(c *Client) {
		c.createTables = enabled
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tables Tables, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if err := tables.validate(); err != nil {
		return nil, err
	}
	c := &Client{api: api, tables: tables}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EnsureConnected probes DynamoDB once per process. A failed probe is not
// remembered, so the next invocation tries again.
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.connected {
		return nil
	}

	if _, err := c.api.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return fmt.Errorf("repository: EnsureConnected: %w", err)
	}
	if c.createTables {
		if err := c.EnsureTables(ctx); err != nil {
			return fmt.Errorf("repository: EnsureConnected: %w", err)
		}
	}
	c.connected = true
	return nil
}

func keyOf(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// queryBySession pages through the SessionIdIndex GSI of table.
func (c *Client) queryBySession(ctx context.Context, table, sessionID string) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(table),
		IndexName:              aws.String(sessionIndex),
		KeyConditionExpression: aws.String("sessionId = :sessionId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
	}

	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		if out == nil {
			break
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return items, nil
}
