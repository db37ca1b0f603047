package cache

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

type dynamoCache struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

func (d *dynamoCache) itemKey(key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"p": {
			S: aws.String(buildKey(key)),
		},
	}
}

func (d *dynamoCache) GetTile(ctx context.Context, key string) (*TileRecord, error) {
	dynamoItem, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.itemKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("error calling GetItem: %w", err)
	}

	if dynamoItem.Item == nil {
		return nil, nil
	}

	rec := &TileRecord{}
	err = dynamodbattribute.UnmarshalMap(dynamoItem.Item, rec)
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling cached item: %w", err)
	}

	return rec, nil
}

func (d *dynamoCache) SetTile(ctx context.Context, rec *TileRecord) error {
	dynamoItem, err := dynamodbattribute.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("error marshalling Dynamo item: %w", err)
	}

	for k, v := range d.itemKey(rec.Key) {
		dynamoItem[k] = v
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      dynamoItem,
	})
	if err != nil {
		return fmt.Errorf("error calling PutItem: %w", err)
	}

	return nil
}

func (d *dynamoCache) DeleteTile(ctx context.Context, key string) error {
	_, err := d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("error calling DeleteItem: %w", err)
	}
	return nil
}

func NewDynamoDBCache(client dynamodbiface.DynamoDBAPI, tableName string) Cache {
	return &dynamoCache{
		client:    client,
		tableName: tableName,
	}
}
