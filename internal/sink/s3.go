package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// permanentCodes are S3 error codes that retrying will not fix.
var permanentCodes = map[string]bool{
	"AccessDenied":          true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes each batch as one JSONL object in an S3-compatible bucket.
type S3Sink struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Sink creates an S3 sink. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Sink(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Sink{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Send uploads events as a new object. Failures are *model.DispatchFailure.
func (s *S3Sink) Send(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := EncodeJSONL(&buf, events); err != nil {
		return &model.DispatchFailure{Events: len(events), Permanent: true, Cause: err}
	}

	key := s.objectKey(events)
	contentType := "application/x-ndjson"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: &contentType,
	})
	if err != nil {
		return &model.DispatchFailure{
			Events:    len(events),
			Permanent: isPermanent(err),
			Cause:     fmt.Errorf("s3 put object %s: %w", key, err),
		}
	}
	return nil
}

// objectKey is <prefix><entity>/<yyyy>/<mm>/<dd>/<uuid>.jsonl.
func (s *S3Sink) objectKey(events []model.Event) string {
	entity := events[0].EntityName
	for _, ev := range events[1:] {
		if ev.EntityName != entity {
			entity = "mixed"
			break
		}
	}
	day := s.now().UTC().Format("2006/01/02")
	return s.prefix + path.Join(entity, day, uuid.NewString()+".jsonl")
}

func isPermanent(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return permanentCodes[apiErr.ErrorCode()]
	}
	return false
}
