package cas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Config describes the bucket a community mirror publishes to. Endpoint and
// static credentials are optional so S3-compatible object stores work too.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every key so multiple pools can share a bucket.
	Prefix      string `mapstructure:"prefix"`
	Region      string `mapstructure:"region"`
	EndpointUrl string `mapstructure:"endpoint-url"`
	AccessKey   string `mapstructure:"access-key"`
	SecretKey   string `mapstructure:"secret-key"`
}

// S3Store is an ObjectStore backed by an S3 bucket. It is the publish-side
// mirror target for community redistribution: the launcher pushes CAS objects
// and manifest documents, it never downloads through this store.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ ObjectStore = &S3Store{}

// NewS3Store resolves AWS configuration and returns a store for cfg.Bucket.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("mirror bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointUrl != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointUrl)
			// S3-compatible endpoints generally do not support virtual-hosted
			// bucket addressing.
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Store) Put(ctx context.Context, hash string, src io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidHash(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	// Objects are immutable so re-uploading an existing hash is harmless, but
	// skipping the transfer saves bandwidth on large archives.
	if exists, err := s.Exists(ctx, hash); err == nil && exists {
		return nil
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(ObjectKey(hash))),
		Body:   src,
	})
	if err != nil {
		return fmt.Errorf("unable to upload object %s: %w", hash, err)
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsValidHash(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(ObjectKey(hash))),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, hash)
		}
		return nil, fmt.Errorf("unable to get object %s: %w", hash, err)
	}
	return out.Body, nil
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !IsValidHash(hash) {
		return false, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(ObjectKey(hash))),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("unable to check object %s: %w", hash, err)
	}
	return true, nil
}

func (s *S3Store) Remove(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidHash(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(ObjectKey(hash))),
	})
	if err != nil {
		return fmt.Errorf("unable to delete object %s: %w", hash, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]ObjectInfo, error) {
	fullPrefix := s.fullKey(objectsDir) + "/"
	objects := make([]ObjectInfo, 0)
	var token *string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to list mirror objects: %w", err)
		}
		for _, obj := range out.Contents {
			hash := path.Base(aws.ToString(obj.Key))
			if !IsValidHash(hash) {
				continue
			}
			objects = append(objects, ObjectInfo{Hash: hash, Size: aws.ToInt64(obj.Size)})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return objects, nil
}

// PutDocument uploads a non-addressable document (a manifest JSON record) at
// the given storage-relative key. Used when mirroring a manifest so consumers
// of the bucket see the same layout as a local storage root.
func (s *S3Store) PutDocument(ctx context.Context, key string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("document key is required")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.fullKey(key)),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("unable to upload document %s: %w", key, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var responseErr *smithyhttp.ResponseError
	return errors.As(err, &responseErr) && responseErr.HTTPStatusCode() == 404
}
