// Package storage archives captured execution logs in S3-compatible
// object storage, keyed by execution id.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

type Client struct {
	mc     *minio.Client
	config Config
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &Client{mc: mc, config: cfg}, nil
}

func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.mc.BucketExists(ctx, c.config.Bucket)
	return err
}

// EnsureBucket creates the log bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.config.Bucket, err)
	}
	if exists {
		return nil
	}
	region := c.config.Region
	if region == "" || region == "auto" {
		region = "us-east-1"
	}
	if err := c.mc.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.config.Bucket, err)
	}
	return nil
}

// ArchiveLogs stores both log streams for an execution.
func (c *Client) ArchiveLogs(ctx context.Context, executionID, stdout, stderr string) error {
	for name, body := range map[string]string{"stdout.log": stdout, "stderr.log": stderr} {
		key := executionID + "/" + name
		r := bytes.NewReader([]byte(body))
		_, err := c.mc.PutObject(ctx, c.config.Bucket, key, r, int64(r.Len()), minio.PutObjectOptions{
			ContentType: "text/plain",
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	return nil
}

// FetchLogs retrieves the archived streams. A missing object yields an
// empty string, not an error, so callers stay best-effort.
func (c *Client) FetchLogs(ctx context.Context, executionID string) (stdout, stderr string, err error) {
	stdout, err = c.fetch(ctx, executionID+"/stdout.log")
	if err != nil {
		return "", "", err
	}
	stderr, err = c.fetch(ctx, executionID+"/stderr.log")
	if err != nil {
		return "", "", err
	}
	return stdout, stderr, nil
}

func (c *Client) fetch(ctx context.Context, key string) (string, error) {
	obj, err := c.mc.GetObject(ctx, c.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return "", nil
		}
		if strings.Contains(err.Error(), "does not exist") {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), nil
}
