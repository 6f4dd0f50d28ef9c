package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"quantflow/logger"
)

// S3Config points the archiver at a bucket. Endpoint and static credentials
// are optional; when empty the default AWS chain applies.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Archiver preserves catalog files that consolidation replaces.
type Archiver interface {
	ArchiveFile(ctx context.Context, catalogRoot, path string) error
}

// S3Archiver uploads consolidated catalog files to object storage.
type S3Archiver struct {
	cfg    S3Config
	client *s3.Client
	log    *logger.Entry
}

func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archiver requires a bucket")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{
		cfg:    cfg,
		client: client,
		log:    logger.WithComponent("s3_archiver"),
	}, nil
}

// ArchiveFile uploads one catalog file, keyed by its path relative to the
// catalog root under the configured prefix.
func (a *S3Archiver) ArchiveFile(ctx context.Context, catalogRoot, path string) error {
	rel, err := filepath.Rel(catalogRoot, path)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", path, err)
	}
	key := filepath.ToSlash(rel)
	if a.cfg.Prefix != "" {
		key = strings.TrimSuffix(a.cfg.Prefix, "/") + "/" + key
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	a.log.WithFields(logger.Fields{
		"bucket": a.cfg.Bucket,
		"key":    key,
	}).Info("Archived catalog file")
	return nil
}

// ArchiveDirectory uploads every data file in a leaf directory.
func (a *S3Archiver) ArchiveDirectory(ctx context.Context, catalogRoot, dir string) error {
	intervals, err := IntervalsForDirectory(dir)
	if err != nil {
		return err
	}
	for _, interval := range intervals {
		if err := a.ArchiveFile(ctx, catalogRoot, interval.Path); err != nil {
			return err
		}
	}
	return nil
}
