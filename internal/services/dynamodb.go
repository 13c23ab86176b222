package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"holiday-status-api/internal/models"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBCache
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Single-table key layout: one item per city
const (
	holidayStatusPKPrefix = "CITY#"
	holidayStatusSK       = "STATUS#LATEST"
)

// HolidayStatusItem is the DynamoDB representation of a cached result
type HolidayStatusItem struct {
	PK        string                `json:"PK"` // Partition Key: CITY#<city>
	SK        string                `json:"SK"` // Sort Key: STATUS#LATEST
	City      string                `json:"city"`
	UpdatedAt string                `json:"updated_at"`
	Result    models.AnalysisResult `json:"result"`
}

// DynamoDBCache persists results in a DynamoDB table so they survive cold starts
type DynamoDBCache struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBCache creates a cache backed by the given table
func NewDynamoDBCache(client DynamoDBAPI, tableName string) *DynamoDBCache {
	return &DynamoDBCache{
		client:    client,
		tableName: tableName,
	}
}

// CreateHolidayStatusPK builds the partition key for a city
func CreateHolidayStatusPK(city string) string {
	return holidayStatusPKPrefix + cacheKey(city)
}

// Get retrieves the latest result for a city
func (d *DynamoDBCache) Get(ctx context.Context, city string) (*models.AnalysisResult, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: CreateHolidayStatusPK(city)},
			"SK": &types.AttributeValueMemberS{Value: holidayStatusSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get holiday status: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item HolidayStatusItem
	err = attributevalue.UnmarshalMapWithOptions(result.Item, &item, func(o *attributevalue.DecoderOptions) {
		o.TagKey = "json"
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal holiday status: %w", err)
	}

	return &item.Result, nil
}

// Put stores the result for a city, replacing any previous item
func (d *DynamoDBCache) Put(ctx context.Context, city string, result *models.AnalysisResult) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}

	item := HolidayStatusItem{
		PK:        CreateHolidayStatusPK(city),
		SK:        holidayStatusSK,
		City:      cacheKey(city),
		UpdatedAt: result.Overall.UpdatedAt,
		Result:    *result,
	}

	// Marshal to DynamoDB attribute values
	av, err := attributevalue.MarshalMapWithOptions(item, func(o *attributevalue.EncoderOptions) {
		o.TagKey = "json"
	})
	if err != nil {
		return fmt.Errorf("failed to marshal holiday status: %w", err)
	}

	// Put item (upsert)
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to store holiday status: %w", err)
	}

	return nil
}
