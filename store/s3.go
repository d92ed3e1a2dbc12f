package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/logship/s3sink/logging"
	"github.com/logship/s3sink/retries"
)

type S3ObjectStorageImpl struct {
	client *s3.Client
	bucket string

	logger logging.Logger
}

func NewS3ObjectStorageImpl(client *s3.Client, bucket string, l logging.Logger) *S3ObjectStorageImpl {
	if l == nil {
		l = logging.NewNullLogger()
	}
	return &S3ObjectStorageImpl{
		client: client,
		bucket: bucket,
		logger: l,
	}
}

func (s *S3ObjectStorageImpl) Put(ctx context.Context, req PutRequest) error {
	bucket := req.Bucket
	if bucket == "" {
		bucket = s.bucket
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(req.Key),
		Body:   bytes.NewReader(req.Body),
	}
	if req.Tagging != "" {
		input.Tagging = aws.String(req.Tagging)
	}
	if req.StorageClass != "" {
		input.StorageClass = types.StorageClass(req.StorageClass)
	}
	if req.ServerSideEncryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(req.ServerSideEncryption)
	}
	if req.ACL != "" {
		input.ACL = types.ObjectCannedACL(req.ACL)
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object: bucket=%s key=%s: %w", bucket, req.Key, err)
	}

	s.logger.Debug("object uploaded", "bucket", bucket, "key", req.Key, "bytes", len(req.Body))
	return nil
}

func (s *S3ObjectStorageImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return retries.Retry(
		ctx,
		retries.HealthAttempts,
		retries.HealthBaseDelay,
		func() error {
			_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
				Bucket: aws.String(s.bucket),
			})
			return err
		},
		retries.IsRetriableS3Error,
	)
}

func (s *S3ObjectStorageImpl) Name() string {
	return fmt.Sprintf("ObjectStorage[%s]", s.bucket)
}
