// Package snapshot archives the remote file set fetched by a pull into object
// storage, so any reconciled commit can be inspected or restored later.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/openlocale/openlocale/internal/sync"
)

// Config holds the S3 bucket configuration. An empty bucket disables
// snapshotting.
type Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// S3Store uploads gzipped JSON snapshots keyed by project and commit.
type S3Store struct {
	client *s3.Client
	bucket string
}

var _ sync.SnapshotStore = (*S3Store)(nil)

func NewS3Store(cfg *Config) (*S3Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 50,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
		Timeout: 30 * time.Second,
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

type snapshotFile struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Content []byte `json:"content"` // base64 via json encoding
}

type snapshotPayload struct {
	ProjectID string         `json:"projectId"`
	CommitSHA string         `json:"commitSha"`
	TakenAt   time.Time      `json:"takenAt"`
	Files     []snapshotFile `json:"files"`
}

// Save uploads the file set for one reconciled commit. The object key is
// stable per (project, commit), so re-pulling the same commit overwrites the
// identical snapshot.
func (s *S3Store) Save(ctx context.Context, projectID string, tree *sync.RemoteTree) error {
	payload := snapshotPayload{
		ProjectID: projectID,
		CommitSHA: tree.CommitSHA,
		TakenAt:   time.Now().UTC(),
		Files:     make([]snapshotFile, 0, len(tree.Files)),
	}
	for _, f := range tree.Files {
		payload.Files = append(payload.Files, snapshotFile{Path: f.Path, SHA: f.SHA, Content: f.Content})
	}

	body, err := encodePayload(&payload)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("projects/%s/%s.json.gz", projectID, tree.CommitSHA)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}

	slog.Debug("snapshot saved", "key", key, "files", len(tree.Files), "size", humanize.Bytes(uint64(len(body))))
	return nil
}

func encodePayload(payload *snapshotPayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
