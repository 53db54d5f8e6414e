// Package s3 publishes packaged library output to Amazon S3-compatible object
// storage.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ngbundle/ngbundle/internal/config"
	ngfs "github.com/ngbundle/ngbundle/internal/fs"
)

// AmazonS3 uploads every file of a directory below a key prefix.
type AmazonS3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New creates a publisher for cfg. Credentials come from the default chain:
// environment variables, shared credentials file, ECS or EC2 instance role.
func New(ctx context.Context, cfg *config.AmazonS3) (*AmazonS3, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no amazon s3 configuration")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.URL != "" {
			o.BaseEndpoint = aws.String(cfg.URL)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	return &AmazonS3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

// Publish uploads the files below dir and returns their keys. Each object
// carries its sha256 and, when set, the revision it was built from.
func (s *AmazonS3) Publish(ctx context.Context, dir, revision string) ([]string, error) {
	files, err := ngfs.Files(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	keys := make([]string, 0, len(files))
	for _, name := range files {
		bs, err := fs.ReadFile(os.DirFS(dir), name)
		if err != nil {
			return nil, err
		}

		key := path.Join(s.prefix, name)
		if err := s.upload(ctx, key, bs, revision); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *AmazonS3) upload(ctx context.Context, key string, bs []byte, revision string) error {
	sum := sha256.Sum256(bs)
	metadata := map[string]string{"sha256": hex.EncodeToString(sum[:])}
	if revision != "" {
		metadata["revision"] = revision
	}

	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(bs),
		Metadata: metadata,
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	_, err := s.uploader.Upload(ctx, input)
	return err
}
