package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ErrAlreadyExists overwrite=false 时对象已存在
var ErrAlreadyExists = errors.New("storage: object already exists")

// Config bucket 连接参数
type Config struct {
	Endpoint        string // S3 兼容入口，例如 http://host/storage/v1/s3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string // 公开对象前缀 .../storage/v1/object/public/<bucket>
}

// Object 列表项
type Object struct {
	Key          string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"updated_at"`
}

// Bucket 一个存储桶
type Bucket struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	publicBase string
}

// New 创建 bucket 客户端（path-style 寻址）
func New(ctx context.Context, cfg Config) (*Bucket, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &Bucket{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Put 上传对象；overwrite=false 时带 If-None-Match: *
func (b *Bucket) Put(ctx context.Context, key string, body []byte, contentType, cacheControl string, overwrite bool) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	}
	if cacheControl != "" {
		input.CacheControl = aws.String(cacheControl)
	}
	if !overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "Duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Remove 删除一个或多个对象
func (b *Bucket) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}

	out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to remove objects: %w", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return fmt.Errorf("failed to remove %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return nil
}

// List 列出前缀下的对象
func (b *Bucket) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	objects := make([]Object, 0, len(out.Contents))
	for _, obj := range out.Contents {
		objects = append(objects, Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return objects, nil
}

// PresignGet 生成限时访问地址
func (b *Bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL 公开访问地址
func (b *Bucket) PublicURL(key string) string {
	return b.publicBase + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL 公开地址转回对象 key，本身就是 key 时原样返回（去掉查询串）
func KeyFromURL(publicBase, pathOrURL string) string {
	s := pathOrURL
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	base := strings.TrimRight(publicBase, "/") + "/"
	switch {
	case strings.HasPrefix(s, base):
		s = strings.TrimPrefix(s, base)
	case strings.Contains(s, "/object/public/"):
		// 其它主机名下的公开地址
		rest := s[strings.Index(s, "/object/public/")+len("/object/public/"):]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			s = rest[j+1:]
		}
	}
	if unescaped, err := url.PathUnescape(s); err == nil {
		s = unescaped
	}
	return strings.TrimLeft(s, "/")
}
