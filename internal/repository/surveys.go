package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"fairstay-backend/internal/domain"
)

// PutSurveyResponse writes an immutable survey response.
func (c *Client) PutSurveyResponse(ctx context.Context, r domain.SurveyResponse) error {
	if strings.TrimSpace(r.ResponseID) == "" {
		return errors.New("repository: PutSurveyResponse: responseId is required")
	}
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("repository: PutSurveyResponse marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tables.Surveys),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(responseId)"),
	}); err != nil {
		return fmt.Errorf("repository: PutSurveyResponse: %w", err)
	}
	return nil
}

// ListSurveyResponses scans the whole survey table.
func (c *Client) ListSurveyResponses(ctx context.Context) ([]domain.SurveyResponse, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(c.tables.Surveys)}

	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ListSurveyResponses scan: %w", err)
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

	responses := make([]domain.SurveyResponse, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &responses); err != nil {
		return nil, fmt.Errorf("repository: ListSurveyResponses unmarshal: %w", err)
	}
	return responses, nil
}

// ListSurveyResponsesBySession returns the responses submitted from one session.
func (c *Client) ListSurveyResponsesBySession(ctx context.Context, sessionID string) ([]domain.SurveyResponse, error) {
	items, err := c.queryBySession(ctx, c.tables.Surveys, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: ListSurveyResponsesBySession query: %w", err)
	}
	responses := make([]domain.SurveyResponse, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &responses); err != nil {
		return nil, fmt.Errorf("repository: ListSurveyResponsesBySession unmarshal: %w", err)
	}
	return responses, nil
}
