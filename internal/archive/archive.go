// Package archive uploads rotated event logs to S3-compatible storage.
package archive

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
)

const (
	// uploadTimeout bounds a single upload.
	uploadTimeout = 5 * time.Minute
	// testTimeout bounds a connection test.
	testTimeout = 30 * time.Second
	// queueSize is the number of rotated files that can wait for upload.
	queueSize = 32
	// DefaultRetryInterval is how often failed uploads are retried.
	DefaultRetryInterval = 10 * time.Minute
	// MaxRetryAge is how long a failed upload keeps being retried.
	MaxRetryAge = 24 * time.Hour
)

// ErrNotConfigured is returned when bucket or credentials are missing.
var ErrNotConfigured = errors.New("S3 is not configured")

// pendingUpload tracks a failed upload for retry.
type pendingUpload struct {
	path         string
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// Uploader copies files to a bucket. Files handed to Enqueue are uploaded
// by Run; failures are retried until MaxRetryAge.
type Uploader struct {
	cfg    types.S3Config
	client *s3.Client
	queue  chan string

	// RetryInterval is how often Run retries failed uploads.
	RetryInterval time.Duration

	mu         sync.Mutex
	retryQueue []pendingUpload
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *types.S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// New creates an Uploader for cfg.
func New(cfg types.S3Config) (*Uploader, error) {
	if !cfg.IsConfigured() {
		return nil, ErrNotConfigured
	}
	return &Uploader{
		cfg:           cfg,
		client:        createS3Client(&cfg),
		queue:         make(chan string, queueSize),
		RetryInterval: DefaultRetryInterval,
	}, nil
}

// Key returns the object key for a local file.
func (u *Uploader) Key(localPath string) string {
	return path.Join(u.cfg.Prefix, filepath.Base(localPath))
}

// Upload copies the file at localPath to the bucket.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, uploadTimeout, errors.New("s3 upload timeout"))
	defer cancel()

	key := u.Key(localPath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	slog.Info("upload completed", "s3_key", key)
	return nil
}

// Enqueue queues localPath for upload by Run without blocking.
func (u *Uploader) Enqueue(localPath string) {
	select {
	case u.queue <- localPath:
		slog.Info("queued file for upload", "file", filepath.Base(localPath))
	default:
		slog.Warn("upload queue full", "file", filepath.Base(localPath))
	}
}

// Run processes the upload queue until ctx is done. On shutdown it uploads
// everything still queued or waiting for retry before returning.
func (u *Uploader) Run(ctx context.Context) error {
	ticker := time.NewTicker(cmp.Or(u.RetryInterval, DefaultRetryInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.drain(context.WithoutCancel(ctx))
			return nil
		case p := <-u.queue:
			// select picks among ready cases at random, so a file can
			// arrive here after cancellation.
			if ctx.Err() != nil {
				u.drain(context.WithoutCancel(ctx), p)
				return nil
			}
			u.uploadOrQueue(ctx, p)
		case <-ticker.C:
			u.processRetryQueue(ctx, time.Now())
		}
	}
}

// drain makes one last upload attempt for paths, the queue and the retry
// queue. Failures stay in the retry queue.
func (u *Uploader) drain(ctx context.Context, paths ...string) {
	ctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	for _, p := range paths {
		u.uploadOrQueue(ctx, p)
	}
	for {
		select {
		case p := <-u.queue:
			u.uploadOrQueue(ctx, p)
		default:
			u.processRetryQueue(ctx, time.Now())
			return
		}
	}
}

// uploadOrQueue uploads p and adds it to the retry queue on failure.
func (u *Uploader) uploadOrQueue(ctx context.Context, p string) {
	if err := u.Upload(ctx, p); err != nil {
		slog.Error("upload failed", "file", filepath.Base(p), "error", err)
		u.addToRetryQueue(p, err.Error())
	}
}

// addToRetryQueue adds a failed upload to the retry queue.
func (u *Uploader) addToRetryQueue(p, errMsg string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, pending := range u.retryQueue {
		if pending.path == p {
			return
		}
	}
	u.retryQueue = append(u.retryQueue, pendingUpload{
		path:         p,
		firstAttempt: time.Now(),
		lastError:    errMsg,
	})
}

// processRetryQueue attempts to upload all pending files.
func (u *Uploader) processRetryQueue(ctx context.Context, now time.Time) {
	u.mu.Lock()
	pending := u.retryQueue
	u.retryQueue = nil
	u.mu.Unlock()

	var failed []pendingUpload
	for _, p := range pending {
		if now.Sub(p.firstAttempt) > MaxRetryAge {
			slog.Warn("upload abandoned after 24h", "file", filepath.Base(p.path), "attempts", p.retryCount+1)
			continue
		}

		p.retryCount++
		err := u.Upload(ctx, p.path)
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("retry file no longer exists", "path", p.path)
			continue
		}
		p.lastError = err.Error()
		failed = append(failed, p)
	}

	u.mu.Lock()
	u.retryQueue = append(u.retryQueue, failed...)
	u.mu.Unlock()
}

// Pending returns the number of uploads waiting for retry.
func (u *Uploader) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.retryQueue)
}

// TestConnection tests connectivity to the bucket by uploading and deleting
// a test file.
func TestConnection(ctx context.Context, cfg types.S3Config) error {
	if !cfg.IsConfigured() {
		return ErrNotConfigured
	}

	client := createS3Client(&cfg)

	ctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	testKey := path.Join(cfg.Prefix, fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano()))
	testContent := []byte("ZuidWest FM voice trigger connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
