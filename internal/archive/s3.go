// Package archive keeps copies of issued financial documents in object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

// ObjectPutter is the slice of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archive struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3Archive(client ObjectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3ArchiveFromEnv loads AWS credentials and region from the standard
// environment chain.
func NewS3ArchiveFromEnv(ctx context.Context, region, bucket, prefix string) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Archive(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// Key is the object key for a document filename.
func (a *S3Archive) Key(filename string) string {
	if a.prefix == "" {
		return filename
	}
	return path.Join(a.prefix, filename)
}

// Put stores content under the filename and returns the object key.
func (a *S3Archive) Put(ctx context.Context, filename, contentType string, content []byte, metadata map[string]string) (string, error) {
	key := a.Key(filename)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", key, err)
	}
	log.WithFields(log.Fields{"bucket": a.bucket, "key": key, "size": len(content)}).Info("Document archived")
	return key, nil
}
