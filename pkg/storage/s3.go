// Package storage archives meeting reports to S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const (
	reportsPrefix     = "reports"
	reportContentType = "application/json"
	defaultPresignTTL = 15 * time.Minute
)

// Config holds the archive bucket settings. Static credentials are optional;
// without them the default AWS credential chain applies.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PresignTTL      time.Duration
}

// S3 archives meeting reports and hands out presigned download links.
type S3 struct {
	client     *s3.Client
	uploader   *manager.Uploader
	presign    *s3.PresignClient
	bucket     string
	presignTTL time.Duration
	logger     *zap.Logger
}

// NewS3 builds the archive client and verifies the AWS config loads.
func NewS3(ctx context.Context, cfg Config, logger *zap.Logger) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	} else {
		logger.Info("s3 using default credential chain")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &S3{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 5 * 1024 * 1024
		}),
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		presignTTL: ttl,
		logger:     logger,
	}, nil
}

// reportKey is reports/{meeting_id}.json.
func reportKey(meetingID string) string {
	return path.Join(reportsPrefix, meetingID+".json")
}

// ArchiveReport streams a report document to the archive bucket.
func (s *S3) ArchiveReport(ctx context.Context, meetingID string, body io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(reportKey(meetingID)),
		Body:        body,
		ContentType: aws.String(reportContentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload report %s: %w", meetingID, err)
	}
	return nil
}

// ReportExists reports whether an archived report is present for the meeting.
func (s *S3) ReportExists(ctx context.Context, meetingID string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(reportKey(meetingID)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("head report %s: %w", meetingID, err)
	}
	return true, nil
}

// PresignReport returns a time-limited download URL for an archived report.
func (s *S3) PresignReport(ctx context.Context, meetingID string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(reportKey(meetingID)),
	}, func(po *s3.PresignOptions) { po.Expires = s.presignTTL })
	if err != nil {
		return "", fmt.Errorf("presign report %s: %w", meetingID, err)
	}
	return req.URL, nil
}
