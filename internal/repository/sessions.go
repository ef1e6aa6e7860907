package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"fairstay-backend/internal/domain"
)

// PutSession writes a session record. Caller-supplied ids are not checked for uniqueness.
func (c *Client) PutSession(ctx context.Context, s domain.Session) error {
	if strings.TrimSpace(s.SessionID) == "" {
		return errors.New("repository: PutSession: sessionId is required")
	}
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("repository: PutSession marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tables.Sessions),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("repository: PutSession: %w", err)
	}
	return nil
}

// GetSession returns ErrNotFound for a missing session and for one whose expiry
// has passed but which the TTL sweep has not removed yet.
func (c *Client) GetSession(ctx context.Context, sessionID string, now time.Time) (domain.Session, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tables.Sessions),
		Key:       keyOf("sessionId", sessionID),
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, ErrNotFound
	}

	var s domain.Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession unmarshal: %w", err)
	}
	if s.Expired(now) {
		return domain.Session{}, ErrNotFound
	}
	return s, nil
}

// TouchSession records activity at now and pushes the expiry out by SessionTTL.
func (c *Client) TouchSession(ctx context.Context, sessionID string, now time.Time) (domain.Session, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tables.Sessions),
		Key:                 keyOf("sessionId", sessionID),
		UpdateExpression:    aws.String("SET lastActivity = :now, #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_exists(sessionId)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(domain.Millis(now), 10)},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(domain.ExpiryFrom(now), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailure(err) {
			return domain.Session{}, ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("repository: TouchSession: %w", err)
	}

	var s domain.Session
	if out != nil && len(out.Attributes) > 0 {
		if err := attributevalue.UnmarshalMap(out.Attributes, &s); err != nil {
			return domain.Session{}, fmt.Errorf("repository: TouchSession unmarshal: %w", err)
		}
	}
	return s, nil
}

// DeleteSession removes a session; deleting a missing session is not an error.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tables.Sessions),
		Key:       keyOf("sessionId", sessionID),
	}); err != nil {
		return fmt.Errorf("repository: DeleteSession: %w", err)
	}
	return nil
}
