// Package storage 是导出 PDF 的对象存储归档。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"resumeforge/internal/config"
)

// Client 持有两个 MinIO 客户端：internal 走集群内地址读写对象，
// public 只用于签发浏览器可访问的下载链接。
type Client struct {
	internal *minio.Client
	public   *minio.Client
	bucket   string
}

// NewClient 根据配置初始化客户端，并确保 Bucket 存在。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	lookup, err := parseBucketLookup(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}

	internal, err := newMinIO(cfg.Endpoint, cfg.UseSSL, cfg, lookup)
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	publicURL, err := url.Parse(cfg.PublicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse minio public endpoint: %w", err)
	}
	if publicURL.Host == "" {
		return nil, errors.New("invalid minio public endpoint, host missing")
	}
	public, err := newMinIO(publicURL.Host, publicURL.Scheme == "https", cfg, lookup)
	if err != nil {
		return nil, fmt.Errorf("init public minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureBucket(ctx, internal, cfg); err != nil {
		return nil, err
	}

	return &Client{internal: internal, public: public, bucket: cfg.Bucket}, nil
}

func newMinIO(endpoint string, secure bool, cfg config.MinIOConfig, lookup minio.BucketLookupType) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
}

func parseBucketLookup(s string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	default:
		return minio.BucketLookupAuto, fmt.Errorf("invalid minio bucket lookup %q", s)
	}
}

func ensureBucket(ctx context.Context, client *minio.Client, cfg config.MinIOConfig) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if !cfg.AutoCreateBucket {
		return fmt.Errorf("bucket %q does not exist (auto create disabled)", cfg.Bucket)
	}
	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
	}
	return nil
}

// Put 写入一个导出文件。
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.internal.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// PresignDownload 生成限时下载链接，浏览器按附件保存为 filename。
func (c *Client) PresignDownload(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	params := downloadParams(filename)
	u, err := c.public.PresignedGetObject(ctx, c.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", key, err)
	}
	return u.String(), nil
}

func downloadParams(filename string) url.Values {
	v := url.Values{}
	v.Set("response-content-type", "application/pdf")
	if filename != "" {
		v.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	return v
}

// DeletePrefix 批量删除前缀下的全部对象。已不存在的对象忽略。
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		// 空前缀会清空整个 bucket
		return errors.New("delete prefix: empty prefix")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listErr error
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for obj := range c.internal.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case objects <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for rerr := range c.internal.RemoveObjects(ctx, c.bucket, objects, minio.RemoveObjectsOptions{}) {
		if IsNoSuchKey(rerr.Err) {
			continue
		}
		errs = append(errs, fmt.Errorf("remove %q: %w", rerr.ObjectName, rerr.Err))
	}
	if listErr != nil {
		errs = append(errs, fmt.Errorf("list objects under %q: %w", prefix, listErr))
	}
	return errors.Join(errs...)
}
