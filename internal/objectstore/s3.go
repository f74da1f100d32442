// internal/objectstore/s3.go
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"robo-ingest/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client the store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store 는 S3 업로드를 담당하는 구성 요소이다.
//   - 메모리 바이트 업로드 (PutBytes): 이벤트 upsert, 재무 레코드, 감사 로그 배치
//   - 로컬 파일 업로드 (PutFile): dead-letter 파일 이관
//
// 모든 업로드는 컨텍스트 기반(timeout + cancel-safe)이며
// 재시도(backoff)를 포함한다. SDK retry 는 0 으로 고정하고
// 재시도 횟수는 Retries 만 사용한다.
type S3Store struct {
	client  PutObjectAPI
	bucket  string
	timeout time.Duration
	retries int
	metrics *metrics.Metrics

	backoffStart time.Duration
	backoffMax   time.Duration
}

// Options for NewS3Store.
type Options struct {
	Region  string
	Bucket  string
	Timeout time.Duration
	Retries int
}

// NewS3Store loads the default AWS config for region and builds the client.
func NewS3Store(ctx context.Context, opt Options, m *metrics.Metrics) (*S3Store, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(opt.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return NewS3StoreWithClient(client, opt, m), nil
}

// NewS3StoreWithClient allows injecting a fake client in tests.
func NewS3StoreWithClient(client PutObjectAPI, opt Options, m *metrics.Metrics) *S3Store {
	if opt.Retries <= 0 {
		opt.Retries = 1
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 5 * time.Second
	}
	return &S3Store{
		client:       client,
		bucket:       opt.Bucket,
		timeout:      opt.Timeout,
		retries:      opt.Retries,
		metrics:      m,
		backoffStart: 200 * time.Millisecond,
		backoffMax:   2 * time.Second,
	}
}

// PutBytes
// -----------------------
// 메모리 바이트 배열을 key 로 업로드한다. 같은 key 면 덮어쓴다(upsert).
// body 는 재시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 사용.
func (u *S3Store) PutBytes(ctx context.Context, key string, body []byte, contentType string) error {
	return u.withRetry(ctx, func(ctx context.Context) error {
		return u.putObject(ctx, key, bytes.NewReader(body), int64(len(body)), contentType)
	})
}

// PutFile
// -----------------------
// 로컬 파일을 그대로 업로드한다.
// 재시도 시 Seek(0) 으로 rewind 한다.
func (u *S3Store) PutFile(ctx context.Context, key string, f io.ReadSeeker, size int64) error {
	return u.withRetry(ctx, func(ctx context.Context) error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return u.putObject(ctx, key, f, size, "application/gzip")
	})
}

func (u *S3Store) withRetry(ctx context.Context, put func(context.Context) error) error {
	var lastErr error
	backoff := u.backoffStart

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := put(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if u.metrics != nil {
			u.metrics.S3PutErrorsTotal.Inc()
		}

		if attempt == u.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > u.backoffMax {
				backoff = u.backoffMax
			}
		}
	}

	return lastErr
}

// putObject 는 PutObject 1회 호출. 호출당 timeout 을 따로 건다.
func (u *S3Store) putObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	ctx2, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := u.client.PutObject(ctx2, in)
	return err
}
