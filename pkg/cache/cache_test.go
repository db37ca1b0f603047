package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

func TestBuildKey(t *testing.T) {
	if k := buildKey("terrain/0/0/0.png"); k != "tile:terrain/0/0/0.png" {
		t.Fatalf("Unexpected key %#v", k)
	}

	long := strings.Repeat("a", 300)
	k := buildKey(long)
	if len(k) > maxKeyLength || !strings.HasPrefix(k, "tile:") {
		t.Fatalf("Expected long key to be hashed, got %#v", k)
	}
	if buildKey(long) != k {
		t.Fatalf("Expected hashed key to be stable")
	}
}

func TestMarshalRecord(t *testing.T) {
	rec := &TileRecord{
		Key:          "terrain/3/2/1@2x.png",
		ContentType:  "image/png",
		CacheControl: "public, max-age=2592000",
		WrittenAt:    time.Date(2016, time.November, 17, 12, 27, 0, 0, time.UTC),
	}
	data, err := marshallData(rec)
	if err != nil {
		t.Fatalf("Unable to marshal: %s", err)
	}
	got, err := unmarshallData(data)
	if err != nil {
		t.Fatalf("Unable to unmarshal: %s", err)
	}
	if got.Key != rec.Key || got.CacheControl != rec.CacheControl || !got.WrittenAt.Equal(rec.WrittenAt) {
		t.Fatalf("Unexpected record %#v", got)
	}

	if _, err := unmarshallData([]byte{0xc1}); err == nil {
		t.Fatalf("Expected error for garbage payload")
	}
}

type mockDynamo struct {
	dynamodbiface.DynamoDBAPI
	items map[string]map[string]*dynamodb.AttributeValue
}

func (m *mockDynamo) GetItemWithContext(_ aws.Context, i *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.items[*i.Key["p"].S]}, nil
}

func (m *mockDynamo) PutItemWithContext(_ aws.Context, i *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.items[*i.Item["p"].S] = i.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) DeleteItemWithContext(_ aws.Context, i *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	delete(m.items, *i.Key["p"].S)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoDBCache(t *testing.T) {
	api := &mockDynamo{items: make(map[string]map[string]*dynamodb.AttributeValue)}
	c := NewDynamoDBCache(api, "tiles")
	ctx := context.Background()

	miss, err := c.GetTile(ctx, "terrain/0/0/0.png")
	if err != nil || miss != nil {
		t.Fatalf("Expected miss, got %#v %v", miss, err)
	}

	rec := &TileRecord{Key: "terrain/0/0/0.png", ContentType: "image/png"}
	if err := c.SetTile(ctx, rec); err != nil {
		t.Fatalf("Unable to set tile: %s", err)
	}
	if _, ok := api.items["tile:terrain/0/0/0.png"]; !ok {
		t.Fatalf("Expected item under hashed partition key, got %#v", api.items)
	}

	hit, err := c.GetTile(ctx, "terrain/0/0/0.png")
	if err != nil || hit == nil || hit.ContentType != "image/png" {
		t.Fatalf("Expected hit, got %#v %v", hit, err)
	}

	if err := c.DeleteTile(ctx, "terrain/0/0/0.png"); err != nil {
		t.Fatalf("Unable to delete tile: %s", err)
	}
	if len(api.items) != 0 {
		t.Fatalf("Expected item to be deleted")
	}
}

func TestNilCache(t *testing.T) {
	var c Cache = NilCache{}
	ctx := context.Background()
	if err := c.SetTile(ctx, &TileRecord{Key: "k"}); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if rec, err := c.GetTile(ctx, "k"); rec != nil || err != nil {
		t.Fatalf("Expected NilCache to always miss")
	}
}
