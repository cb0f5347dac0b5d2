package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/okian/sphere/internal/domain/artifact"
)

const (
	descriptorFile   = "descriptor.yaml"
	defaultModelFile = "model.json"
	maxArtifactBytes = 64 << 20
)

// Source fetches the raw descriptor and model parameters for a kind.
type Source interface {
	Fetch(ctx context.Context, kind artifact.Kind) (descriptor, params []byte, err error)
}

// modelFileOf returns the model file named by a descriptor, constrained to a
// single path element so a descriptor cannot point outside its directory.
func modelFileOf(descriptor []byte) (string, error) {
	d, err := artifact.ParseDescriptor(descriptor)
	if err != nil {
		return "", err
	}
	name := d.ModelFile
	if name == "" {
		return defaultModelFile, nil
	}
	if name != path.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: model_file %q must be a bare file name", artifact.ErrInvalidArtifact, name)
	}
	return name, nil
}

// FSSource reads <kind>/descriptor.yaml and its model file from an fs.FS.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource wraps fsys.
func NewFSSource(fsys fs.FS) *FSSource { return &FSSource{fsys: fsys} }

// NewDirSource reads artifacts from a local directory.
func NewDirSource(dir string) *FSSource { return NewFSSource(os.DirFS(dir)) }

// Fetch implements Source.
func (s *FSSource) Fetch(_ context.Context, kind artifact.Kind) ([]byte, []byte, error) {
	desc, err := fs.ReadFile(s.fsys, path.Join(string(kind), descriptorFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", artifact.ErrMissingDescriptor, kind)
		}
		return nil, nil, fmt.Errorf("read %s descriptor: %w", kind, err)
	}
	name, err := modelFileOf(desc)
	if err != nil {
		return nil, nil, err
	}
	params, err := fs.ReadFile(s.fsys, path.Join(string(kind), name))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s model: %w", kind, err)
	}
	return desc, params, nil
}

// S3API is the part of the S3 client the source needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads <prefix>/<kind>/descriptor.yaml and its model file from a bucket.
type S3Source struct {
	client   S3API
	bucket   string
	prefix   string
	maxBytes int64
}

// S3Option configures an S3Source.
type S3Option func(*S3Source)

// WithMaxObjectSize caps the size of a single artifact object.
func WithMaxObjectSize(n int64) S3Option {
	return func(s *S3Source) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// NewS3Source wraps an existing client.
func NewS3Source(client S3API, bucket, prefix string, opts ...S3Option) *S3Source {
	s := &S3Source{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), maxBytes: maxArtifactBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialS3Source loads the default AWS config. A non-empty endpoint switches to
// path-style addressing for MinIO and similar.
func DialS3Source(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3Source(s3.NewFromConfig(cfg, s3opts...), bucket, prefix), nil
}

// Fetch implements Source.
func (s *S3Source) Fetch(ctx context.Context, kind artifact.Kind) ([]byte, []byte, error) {
	desc, err := s.get(ctx, s.key(kind, descriptorFile))
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, nil, fmt.Errorf("%w: %s: %w", artifact.ErrMissingDescriptor, kind, err)
		}
		return nil, nil, fmt.Errorf("fetch %s descriptor: %w", kind, err)
	}
	name, err := modelFileOf(desc)
	if err != nil {
		return nil, nil, err
	}
	params, err := s.get(ctx, s.key(kind, name))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s model: %w", kind, err)
	}
	return desc, params, nil
}

func (s *S3Source) key(kind artifact.Kind, file string) string {
	if s.prefix == "" {
		return path.Join(string(kind), file)
	}
	return path.Join(s.prefix, string(kind), file)
}

func (s *S3Source) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: %w", key, err)
	}
	defer out.Body.Close()
	var buf bytes.Buffer
	// One byte past the cap tells an oversized object from one that fits.
	if _, err := io.Copy(&buf, io.LimitReader(out.Body, s.maxBytes+1)); err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	if int64(buf.Len()) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrArtifactTooLarge, key, s.maxBytes)
	}
	return buf.Bytes(), nil
}
