package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/pkg/models"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "wikibot"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client publishes and fetches snapshots in an S3 bucket.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// SnapshotPrefix returns the key prefix for snapshots of a wiki,
// e.g. "snapshots/wiki.example.org".
func SnapshotPrefix(sourceBaseURL string) string {
	host := sourceBaseURL
	if u, err := url.Parse(sourceBaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.NewReplacer("/", "_", ":", "_").Replace(host)
	if host == "" {
		host = "unknown"
	}
	return path.Join("snapshots", host)
}

// LatestKey returns the key of the most recent snapshot of a wiki.
func LatestKey(sourceBaseURL string) string {
	return path.Join(SnapshotPrefix(sourceBaseURL), "latest.json")
}

// ArchiveKey returns the key under which a snapshot generated at t is kept.
func ArchiveKey(sourceBaseURL string, t time.Time) string {
	return path.Join(SnapshotPrefix(sourceBaseURL), t.UTC().Format("2006-01-02T15-04-05Z")+".json")
}

// PutSnapshot uploads snap twice: as a timestamped archive copy and as
// latest.json. It returns the archive key.
func (c *Client) PutSnapshot(ctx context.Context, snap *models.Snapshot) (string, error) {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return "", err
	}

	archive := ArchiveKey(snap.SourceBaseURL, snap.GeneratedAt)
	for _, key := range []string{archive, LatestKey(snap.SourceBaseURL)} {
		_, err := c.minioClient.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if err != nil {
			return "", fmt.Errorf("failed to put snapshot %s: %w", key, err)
		}
	}
	return archive, nil
}

// GetSnapshot downloads and decodes the snapshot stored at key.
func (c *Client) GetSnapshot(ctx context.Context, key string) (*models.Snapshot, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// GetLatest downloads the most recent snapshot of a wiki.
func (c *Client) GetLatest(ctx context.Context, sourceBaseURL string) (*models.Snapshot, error) {
	return c.GetSnapshot(ctx, LatestKey(sourceBaseURL))
}

// ListSnapshots returns the archived snapshot keys of a wiki, oldest first.
func (c *Client) ListSnapshots(ctx context.Context, sourceBaseURL string) ([]string, error) {
	prefix := SnapshotPrefix(sourceBaseURL) + "/"
	var keys []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, ".json") && path.Base(object.Key) != "latest.json" {
			keys = append(keys, object.Key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}
