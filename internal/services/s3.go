package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"holiday-status-api/internal/models"
)

// S3API is the subset of the S3 client used by S3Publisher
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3UploadResult represents the result of an S3 upload operation
type S3UploadResult struct {
	Key         string    `json:"key"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ContentType string    `json:"content_type"`
	PublicURL   string    `json:"public_url"`
}

// S3Publisher writes result snapshots for static consumers: a per-city
// latest.json that is overwritten, plus an append-only history object.
type S3Publisher struct {
	client     S3API
	bucketName string
	region     string
	clock      clockwork.Clock
}

// NewS3Publisher creates a publisher for the bucket. A nil clock means the real clock.
func NewS3Publisher(client S3API, bucketName, region string, clock clockwork.Clock) *S3Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &S3Publisher{
		client:     client,
		bucketName: bucketName,
		region:     region,
		clock:      clock,
	}
}

// LatestKey is the object key of a city's latest snapshot
func LatestKey(city string) string {
	return fmt.Sprintf("holiday-status/%s/latest.json", url.PathEscape(cacheKey(city)))
}

// HistoryKey builds a unique history object key for a city
func HistoryKey(city string, at time.Time) string {
	timestamp := at.UTC().Format("2006-01-02T15-04-05Z")
	return fmt.Sprintf("holiday-status/%s/history/%s-%s.json", url.PathEscape(cacheKey(city)), timestamp, uuid.NewString())
}

// Publish uploads the history snapshot first, then replaces latest.json
func (s *S3Publisher) Publish(ctx context.Context, city string, result *models.AnalysisResult) ([]*S3UploadResult, error) {
	if result == nil {
		return nil, errors.New("result cannot be nil")
	}

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal holiday status to JSON: %w", err)
	}

	history, err := s.uploadJSON(ctx, jsonData, HistoryKey(city, s.clock.Now()))
	if err != nil {
		return nil, err
	}
	latest, err := s.uploadJSON(ctx, jsonData, LatestKey(city))
	if err != nil {
		return []*S3UploadResult{history}, err
	}
	return []*S3UploadResult{history, latest}, nil
}

// DownloadLatest reads a city's latest snapshot
func (s *S3Publisher) DownloadLatest(ctx context.Context, city string) (*models.AnalysisResult, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(LatestKey(city)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holiday status JSON: %w", err)
	}
	return &result, nil
}

func (s *S3Publisher) uploadJSON(ctx context.Context, data []byte, key string) (*S3UploadResult, error) {
	key = strings.TrimPrefix(key, "/")
	now := s.clock.Now().UTC()

	output, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		// Short cache so clients see refreshes quickly
		CacheControl: aws.String("public, max-age=60"),
		Metadata: map[string]string{
			"uploaded-by": "holiday-status-api",
			"upload-time": now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	return &S3UploadResult{
		Key:         key,
		ETag:        strings.Trim(aws.ToString(output.ETag), `"`),
		Size:        int64(len(data)),
		UploadedAt:  now,
		ContentType: "application/json",
		PublicURL:   s.GetPublicURL(key),
	}, nil
}

// GetPublicURL generates the public URL for an S3 object
func (s *S3Publisher) GetPublicURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucketName, s.region, key)
}
