package objstore

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3-compatible object store backend (spec §4.H
// "optional S3-compatible object backend"): lets a depot's object store
// live in S3 while runs/statuses stay on a POSIX remote.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool
	// PrefixChars controls the fan-out key-prefix depth (default 2).
	PrefixChars int
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("objstore: S3 bucket is required")
	}
	return nil
}

// S3Store is a Store backed by an S3-compatible bucket.
type S3Store struct {
	client      *s3.Client
	bucket      string
	prefix      string
	prefixChars int
}

// NewS3Store creates an S3Store using the AWS SDK default credential chain
// (env vars, shared config, IAM role).
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	prefixChars := cfg.PrefixChars
	if prefixChars <= 0 {
		prefixChars = 2
	}

	return &S3Store{
		client:      s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		prefixChars: prefixChars,
	}, nil
}

func (s *S3Store) keyFor(name string) string {
	base := name
	if dot := lastDot(name); dot >= 0 {
		base = name[:dot]
	}
	fanout := base
	if len(base) > s.prefixChars {
		fanout = base[:s.prefixChars]
	}
	return path.Join(s.prefix, fanout, name)
}

func (s *S3Store) dumpWithExt(ctx context.Context, b []byte, ext string) (string, error) {
	name := hashName(b) + ext
	key := s.keyFor(name)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return name, nil // idempotent: already written
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: content, Method: zip.Deflate})
	if err != nil {
		return "", fmt.Errorf("objstore: create zip entry: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return "", fmt.Errorf("objstore: write zip entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("objstore: close zip: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", fmt.Errorf("objstore: put %s: %w", key, err)
	}

	return name, nil
}

// DumpCtx is the context-aware form of Dump, used by S3Store's callers
// (the Store interface stays context-free to match FSStore and the spec's
// synchronous-by-default object store contract).
func (s *S3Store) DumpCtx(ctx context.Context, b []byte) (string, error) {
	return s.dumpWithExt(ctx, b, extBlob)
}

// Dump implements Store using a background context.
func (s *S3Store) Dump(b []byte) (string, error) {
	return s.DumpCtx(context.Background(), b)
}

// DumpJSON implements Store.
func (s *S3Store) DumpJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("objstore: marshal json: %w", err)
	}
	return s.dumpWithExt(context.Background(), b, extJSON)
}

// DumpString implements Store.
func (s *S3Store) DumpString(str string) (string, error) {
	return s.dumpWithExt(context.Background(), []byte(str), extText)
}

// ReadCtx is the context-aware form of Read.
func (s *S3Store) ReadCtx(ctx context.Context, name string) ([]byte, error) {
	key := s.keyFor(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("objstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objstore: read body: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("objstore: open zip %s: %w", name, err)
	}
	for _, zf := range zr.File {
		if zf.Name != content {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("objstore: open entry: %w", err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("objstore: %s missing %q entry", name, content)
}

// Read implements Store using a background context.
func (s *S3Store) Read(name string) ([]byte, error) {
	return s.ReadCtx(context.Background(), name)
}

// ReadJSON implements Store.
func (s *S3Store) ReadJSON(name string, v any) error {
	b, err := s.Read(name)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ReadString implements Store.
func (s *S3Store) ReadString(name string) (string, error) {
	b, err := s.Read(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ Store = (*S3Store)(nil)
