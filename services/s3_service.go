//go:generate go run go.uber.org/mock/mockgen -source=s3_service.go -destination=../mocks/mock_object_store.go -package=mocks
package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"labchat_server/apperrors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// ObjectStore stores a blob and returns the URL clients can load it from.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Service struct {
	client        S3API
	bucket        string
	region        string
	publicBaseURL string
	log           *logrus.Logger
}

// NewS3Client loads the default AWS config for region.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func NewS3Service(client S3API, bucket, region, publicBaseURL string, log *logrus.Logger) *S3Service {
	return &S3Service{
		client:        client,
		bucket:        bucket,
		region:        region,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log,
	}
}

func (s *S3Service) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if s.bucket == "" {
		return "", apperrors.Internal("image storage is not configured", nil)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("failed to upload object")
		return "", apperrors.Internal("failed to upload image", err)
	}
	return s.PublicURL(key), nil
}

// PublicURL is where a stored key is served from.
func (s *S3Service) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// GroupImageKey builds the object key of a group picture.
func GroupImageKey(groupID, fileName string, at time.Time) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		base = "image"
	}
	return "group-images/" + groupID + "/" + at.Format("20060102150405") + "-" + url.PathEscape(base)
}
