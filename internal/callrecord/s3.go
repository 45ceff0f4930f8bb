package callrecord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 client used to upload records.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads each record as one JSON object.
type S3Store struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Store(ctx context.Context, bucket, prefix, region string) (*S3Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewS3StoreWithClient(client ObjectPutter, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *S3Store) Save(ctx context.Context, record Record) (string, error) {
	record = withDefaults(record)
	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	key := ObjectKey(s.prefix, s.now(), record.StreamID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload record to s3://%s/%s: %w", s.bucket, key, err)
	}
	return key, nil
}

func (s *S3Store) Close() error { return nil }

// ObjectKey builds prefix + ISO timestamp with ':' and '.' replaced by '-'.
// The stream id is appended so concurrent calls ending in the same
// millisecond do not overwrite each other.
func ObjectKey(prefix string, at time.Time, streamID string) string {
	stamp := at.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	if streamID != "" {
		stamp += "-" + streamID
	}
	return prefix + stamp + ".json"
}
