package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type S3Storage struct {
	client       s3iface.S3API
	acl          string
	storageClass string

	// healthcheck object, only checked when both are set
	healthBucket string
	healthKey    string
}

// NewS3Storage creates a storage writing through api. The acl and storage
// class are applied to every put when non-empty, e.g. "public-read" and
// "REDUCED_REDUNDANCY".
func NewS3Storage(api s3iface.S3API, acl, storageClass, healthBucket, healthKey string) *S3Storage {
	return &S3Storage{
		client:       api,
		acl:          acl,
		storageClass: storageClass,
		healthBucket: healthBucket,
		healthKey:    healthKey,
	}
}

func (s *S3Storage) Put(ctx context.Context, bucket, key string, obj *Object) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(obj.Body),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if obj.CacheControl != "" {
		input.CacheControl = aws.String(obj.CacheControl)
	}
	if len(obj.Metadata) > 0 {
		input.Metadata = aws.StringMap(obj.Metadata)
	}
	if s.acl != "" {
		input.ACL = aws.String(s.acl)
	}
	if s.storageClass != "" {
		input.StorageClass = aws.String(s.storageClass)
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Storage) Delete(ctx context.Context, bucket, key string) error {
	input := &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	_, err := s.client.DeleteObjectWithContext(ctx, input)
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok {
			// deletes are retried from the queue, a missing key means done
			switch awsErr.Code() {
			case s3.ErrCodeNoSuchKey, "NotFound":
				return nil
			}
		}
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Storage) HealthCheck() error {
	if s.healthBucket == "" || s.healthKey == "" {
		return nil
	}
	input := &s3.GetObjectInput{Bucket: &s.healthBucket, Key: &s.healthKey}
	resp, err := s.client.GetObject(input)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return err
}
