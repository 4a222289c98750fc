package volume

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config mirrors storage/persistence-s3.go's S3Factory fields: the
// cold-storage tier a sealed volume is archived to once it's rotated out
// of the active ring (spec.md §4.1's Backend is intentionally storage-
// agnostic; S3 has no random-write append, so S3Backend buffers the whole
// volume in memory and round-trips it as one object on Sync/ReadAt, the
// same buffer-then-PutObject idiom as S3Storage.WriteColumn).
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Key             string
	ForcePathStyle  bool
}

type S3Backend struct {
	cfg      S3Config
	capacity int64

	mu     sync.Mutex
	client *s3.Client
	buf    []byte
	loaded bool
}

func NewS3Backend(cfg S3Config, capacity int64) *S3Backend {
	return &S3Backend{cfg: cfg, capacity: capacity, buf: make([]byte, capacity)}
}

func (b *S3Backend) ensureClient() {
	if b.client != nil {
		return
	}
	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if b.cfg.Region != "" {
		opts = append(opts, config.WithRegion(b.cfg.Region))
	}
	if b.cfg.AccessKeyID != "" && b.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.cfg.AccessKeyID, b.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("volume: S3Backend failed to load AWS config: %v", err))
	}
	var s3Opts []func(*s3.Options)
	if b.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(b.cfg.Endpoint) })
	}
	if b.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	b.client = s3.NewFromConfig(awsCfg, s3Opts...)
}

func (b *S3Backend) ensureLoaded(ctx context.Context) {
	if b.loaded {
		return
	}
	b.ensureClient()
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.cfg.Bucket), Key: aws.String(b.cfg.Key)})
	if err == nil {
		defer resp.Body.Close()
		data, rerr := io.ReadAll(resp.Body)
		if rerr == nil {
			copy(b.buf, data)
		}
	}
	b.loaded = true
}

func (b *S3Backend) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureLoaded(context.Background())
	return copy(p, b.buf[off:off+int64(len(p))]), nil
}

func (b *S3Backend) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureLoaded(context.Background())
	return copy(b.buf[off:off+int64(len(p))], p), nil
}

func (b *S3Backend) Mmap() ([]byte, bool) { return nil, false }

func (b *S3Backend) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureClient()
	_, err := b.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.cfg.Key),
		Body:   bytes.NewReader(b.buf),
	})
	return err
}

func (b *S3Backend) Capacity() int64 { return b.capacity }

func (b *S3Backend) Close() error { return b.Sync() }
