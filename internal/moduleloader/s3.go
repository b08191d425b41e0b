package moduleloader

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oriys/bur/internal/pkg/crypto"
)

// S3Loader resolves an import path to an object under Bucket/Prefix,
// the remotely-hosted-module backend spec.md §6's ModuleLoader
// contract is widened to support.
type S3Loader struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures a NewS3Loader call.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string // optional, falls back to the default credential chain
	SecretAccessKey string
}

// NewS3Loader constructs an S3Loader, resolving credentials from cfg
// if both key fields are set, otherwise from the SDK's default chain
// (environment, shared config, instance role).
func NewS3Loader(ctx context.Context, cfg S3Config) (*S3Loader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("moduleloader: loading AWS config: %w", err)
	}
	return &S3Loader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
	}, nil
}

func (l *S3Loader) key(importPath string) string {
	key := importPath
	if path.Ext(key) == "" {
		key += ".bur"
	}
	if l.prefix == "" {
		return key
	}
	return l.prefix + "/" + key
}

// Load fetches the object for path from S3.
func (l *S3Loader) Load(ctx context.Context, path string) (*LoadedModule, error) {
	key := l.key(path)
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("moduleloader: s3 get %q/%q: %w", l.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("moduleloader: reading s3 object %q/%q: %w", l.bucket, key, err)
	}
	src := string(data)
	return &LoadedModule{Path: path, Source: src, Hash: crypto.HashString(src)}, nil
}
