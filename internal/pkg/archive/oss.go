// Package archive 将支付回调原文归档到对象存储，便于对账和排查
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"rakhi_store/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// Record 一次回调
type Record struct {
	Provider    string            `json:"provider"`
	Outcome     string            `json:"outcome"` // accepted/duplicate/rejected/error
	OrderNumber string            `json:"orderNumber,omitempty"`
	RemoteAddr  string            `json:"remoteAddr,omitempty"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	ReceivedAt  time.Time         `json:"receivedAt"`
}

// Archiver 归档接口
type Archiver interface {
	Archive(ctx context.Context, rec Record) (string, error)
}

type objectPutter interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

// AliyunOSSArchiver 写入阿里云 OSS
type AliyunOSSArchiver struct {
	bucket objectPutter
	prefix string
}

func NewAliyunOSSArchiver(cfg config.OSSConfig) (*AliyunOSSArchiver, error) {
	if !cfg.Enabled() {
		return nil, errors.New("oss config missing")
	}
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &AliyunOSSArchiver{bucket: bucket, prefix: cfg.Prefix}, nil
}

// Archive 对象名: prefix/provider/YYYYMMDD/uuid-outcome.json
func (a *AliyunOSSArchiver) Archive(ctx context.Context, rec Record) (string, error) {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	key := path.Join(a.prefix, rec.Provider, rec.ReceivedAt.Format("20060102"),
		fmt.Sprintf("%s-%s.json", uuid.New().String(), rec.Outcome))

	if err := a.bucket.PutObject(key, bytes.NewReader(body),
		oss.ContentType("application/json"), oss.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Nop 未配置 OSS 时使用
type Nop struct{}

func (Nop) Archive(ctx context.Context, rec Record) (string, error) { return "", nil }

// New 根据配置选择归档方式
func New(cfg config.OSSConfig) (Archiver, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}
	return NewAliyunOSSArchiver(cfg)
}
