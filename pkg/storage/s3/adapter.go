// Package s3 provides an S3 implementation of the storage provider.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/txn2/log-sessionizer/pkg/storage"
)

const outputContentType = "text/csv"

// ErrReadOnly is returned by Create on a read-only adapter.
var ErrReadOnly = errors.New("s3 adapter is read-only")

// Config holds S3 adapter configuration.
type Config struct {
	Region       string
	Endpoint     string
	AccessKeyID  string
	SecretKey    string
	UsePathStyle bool
	ReadOnly     bool
}

// Client defines the S3 operations used by the adapter.
// *s3.Client satisfies it; tests substitute a mock.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Adapter implements storage.Provider using S3.
type Adapter struct {
	cfg    Config
	client Client
}

// New creates a new S3 adapter with an existing client.
func New(cfg Config, client Client) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	return &Adapter{
		cfg:    cfg,
		client: client,
	}, nil
}

// NewFromConfig creates a new S3 adapter with a new client from config.
// Static credentials are used when an access key is set; otherwise the
// default AWS credential chain applies.
func NewFromConfig(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return New(cfg, client)
}

// Name returns the provider name.
func (*Adapter) Name() string {
	return "s3"
}

// Open streams the object body.
func (a *Adapter) Open(ctx context.Context, loc storage.Location) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", loc, err)
	}
	return out.Body, nil
}

// Create returns a writer that spools to a temporary file and uploads the
// object when closed.
func (a *Adapter) Create(ctx context.Context, loc storage.Location) (io.WriteCloser, error) {
	if a.cfg.ReadOnly {
		return nil, fmt.Errorf("creating object %s: %w", loc, ErrReadOnly)
	}

	spool, err := os.CreateTemp("", "sessionizer-upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating upload spool: %w", err)
	}

	return &objectWriter{
		ctx:    ctx,
		client: a.client,
		loc:    loc,
		spool:  spool,
	}, nil
}

// Close releases resources.
func (*Adapter) Close() error {
	return nil
}

// objectWriter buffers an object on disk until Close uploads it.
type objectWriter struct {
	ctx    context.Context //nolint:containedctx // upload happens in Close, which takes no context
	client Client
	loc    storage.Location
	spool  *os.File

	once     sync.Once
	closeErr error
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.spool.Write(p)
}

// Close uploads the spooled content and removes the spool file. Calling
// Close more than once returns the first result.
func (w *objectWriter) Close() error {
	w.once.Do(func() {
		defer func() {
			_ = w.spool.Close()
			_ = os.Remove(w.spool.Name())
		}()
		w.closeErr = w.upload()
	})
	return w.closeErr
}

func (w *objectWriter) upload() error {
	size, err := w.spool.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("sizing upload spool: %w", err)
	}
	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding upload spool: %w", err)
	}

	_, err = w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.loc.Bucket),
		Key:           aws.String(w.loc.Key),
		Body:          w.spool,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(outputContentType),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", w.loc, err)
	}
	return nil
}

// Verify interface compliance.
var (
	_ storage.Provider = (*Adapter)(nil)
	_ Client           = (*s3.Client)(nil)
)
