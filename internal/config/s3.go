package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client creates an S3 client using Loader.Profile, or the [s3] profile if Loader.Profile is empty.
//
// The client is cached so subsequent calls return the same instance.
func (l *Loader) NewS3Client(ctx context.Context, optFns ...func(*s3.Options)) (*s3.Client, error) {
	if c, ok := l.s3clientCache.Load("s3"); ok {
		return c.(*s3.Client), nil
	}

	profile := l.Profile
	if profile == "" {
		profile = l.ForS3().AWSProfile
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile))
	if err != nil {
		return nil, err
	}

	c := s3.NewFromConfig(cfg, optFns...)
	l.s3clientCache.Store("s3", c)
	return c, nil
}

// NewS3Client calls Loader.NewS3Client on the DefaultLoader instance.
func NewS3Client(ctx context.Context, optFns ...func(*s3.Options)) (*s3.Client, error) {
	return DefaultLoader.NewS3Client(ctx, optFns...)
}
