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

// PutImage writes a new image record. The write fails if the id is already taken.
func (c *Client) PutImage(ctx context.Context, img domain.Image) error {
	if strings.TrimSpace(img.ImageID) == "" {
		return errors.New("repository: PutImage: imageId is required")
	}
	if img.Analysis.Damages == nil {
		img.Analysis.Damages = []domain.Damage{}
	}
	item, err := attributevalue.MarshalMap(img)
	if err != nil {
		return fmt.Errorf("repository: PutImage marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tables.Images),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(imageId)"),
	}); err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("repository: PutImage: %w", ErrConditionFailed)
		}
		return fmt.Errorf("repository: PutImage: %w", err)
	}
	return nil
}

// GetImage reads one image by id.
func (c *Client) GetImage(ctx context.Context, imageID string) (domain.Image, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tables.Images),
		Key:            keyOf("imageId", imageID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Image{}, fmt.Errorf("repository: GetImage get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Image{}, ErrNotFound
	}
	img, err := itemToImage(out.Item)
	if err != nil {
		return domain.Image{}, fmt.Errorf("repository: GetImage: %w", err)
	}
	return img, nil
}

// ListImagesBySession returns every image of a session in store order.
func (c *Client) ListImagesBySession(ctx context.Context, sessionID string) ([]domain.Image, error) {
	items, err := c.queryBySession(ctx, c.tables.Images, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: ListImagesBySession query: %w", err)
	}
	images := make([]domain.Image, 0, len(items))
	for _, item := range items {
		img, err := itemToImage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListImagesBySession: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

// AnalysisUpdate is a guarded transition of an image's analysis state.
type AnalysisUpdate struct {
	ImageID string
	// Expected is the status the record must still hold for the write to apply.
	Expected          domain.AnalysisStatus
	Analysis          domain.DamageAnalysis
	ProcessedImageURL string
}

// UpdateImageAnalysis replaces the analysis state only if the stored status
// still equals u.Expected; otherwise it returns ErrConditionFailed. A missing
// image also fails the condition.
func (c *Client) UpdateImageAnalysis(ctx context.Context, u AnalysisUpdate) (domain.Image, error) {
	if strings.TrimSpace(u.ImageID) == "" {
		return domain.Image{}, errors.New("repository: UpdateImageAnalysis: imageId is required")
	}
	if !u.Expected.Valid() || !u.Analysis.Status.Valid() {
		return domain.Image{}, errors.New("repository: UpdateImageAnalysis: invalid status")
	}
	if u.Analysis.Damages == nil {
		u.Analysis.Damages = []domain.Damage{}
	}

	analysis, err := attributevalue.Marshal(u.Analysis)
	if err != nil {
		return domain.Image{}, fmt.Errorf("repository: UpdateImageAnalysis marshal: %w", err)
	}

	update := "SET #analysis = :analysis"
	names := map[string]string{
		"#analysis": "damageAnalysis",
		"#status":   "status",
	}
	values := map[string]types.AttributeValue{
		":analysis": analysis,
		":expected": &types.AttributeValueMemberS{Value: string(u.Expected)},
	}
	if u.ProcessedImageURL != "" {
		update += ", #processed = :processed"
		names["#processed"] = "processedImageUrl"
		values[":processed"] = &types.AttributeValueMemberS{Value: u.ProcessedImageURL}
	}

	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tables.Images),
		Key:                       keyOf("imageId", u.ImageID),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_exists(imageId) AND #analysis.#status = :expected"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailure(err) {
			return domain.Image{}, ErrConditionFailed
		}
		return domain.Image{}, fmt.Errorf("repository: UpdateImageAnalysis: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return domain.Image{}, errors.New("repository: UpdateImageAnalysis: empty result")
	}
	img, err := itemToImage(out.Attributes)
	if err != nil {
		return domain.Image{}, fmt.Errorf("repository: UpdateImageAnalysis: %w", err)
	}
	return img, nil
}

// DeleteImage removes an image record. It is a maintenance operation only.
func (c *Client) DeleteImage(ctx context.Context, imageID string) error {
	if _, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tables.Images),
		Key:       keyOf("imageId", imageID),
	}); err != nil {
		return fmt.Errorf("repository: DeleteImage: %w", err)
	}
	return nil
}

func itemToImage(item map[string]types.AttributeValue) (domain.Image, error) {
	var img domain.Image
	if err := attributevalue.UnmarshalMap(item, &img); err != nil {
		return domain.Image{}, fmt.Errorf("unmarshal image: %w", err)
	}
	if img.ImageID == "" {
		return domain.Image{}, fmt.Errorf("unmarshal image: missing attribute %q", "imageId")
	}
	if img.Analysis.Damages == nil {
		img.Analysis.Damages = []domain.Damage{}
	}
	return img, nil
}
