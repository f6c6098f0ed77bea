package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"guardian-go/internal/config"
	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// S3API is the subset of the S3 client used by S3Vault.
type S3API interface {
	manager.UploadAPIClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Vault stores blobs as objects under <prefix>/<owner>/<algorithm>/<digest>.
// Uploads go through the S3 transfer manager so large files are sent
// in parts.
type S3Vault struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Vault creates a vault over an existing client.
func NewS3Vault(client S3API, bucket, prefix string) *S3Vault {
	return &S3Vault{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// NewS3VaultFromConfig builds the client from the default AWS credential
// chain, overridden by static keys and a custom endpoint when configured.
func NewS3VaultFromConfig(cfg config.VaultConfig) (*S3Vault, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Vault(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func (v *S3Vault) key(ref model.BlobIdentifier) (string, error) {
	if err := checkRef(ref); err != nil {
		return "", err
	}
	return path.Join(v.prefix, ref.Key()), nil
}

// Has reports whether the object for ref exists.
func (v *S3Vault) Has(ref model.BlobIdentifier) (bool, error) {
	key, err := v.key(ref)
	if err != nil {
		return false, err
	}
	_, err = v.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking object %s: %w", key, err)
	}
	return true, nil
}

// Insert uploads content unless the object already exists. An upload
// whose length differs from the declared length is removed again.
func (v *S3Vault) Insert(ref model.BlobIdentifier, content guardian.BlobSource) error {
	key, err := v.key(ref)
	if err != nil {
		return err
	}
	exists, err := v.Has(ref)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := &countingReader{r: content}
	_, err = v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("uploading object %s: %w", key, err)
	}
	if body.n != content.TotalLength() {
		err := fmt.Errorf("size mismatch: expected %d bytes, got %d", content.TotalLength(), body.n)
		_, delErr := v.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
			Bucket: aws.String(v.bucket),
			Key:    aws.String(key),
		})
		if delErr != nil {
			return errors.Join(err, fmt.Errorf("removing partial object %s: %w", key, delErr))
		}
		return err
	}
	return nil
}

// Fetch streams the object body.
func (v *S3Vault) Fetch(ref model.BlobIdentifier) (guardian.BlobSource, error) {
	key, err := v.key(ref)
	if err != nil {
		return nil, err
	}
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(ref)
		}
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	return guardian.NewReaderBlob(out.Body, uint64(aws.ToInt64(out.ContentLength))), nil
}

// Delete removes the object. S3 deletes are silent for missing keys, so
// existence is checked first.
func (v *S3Vault) Delete(ref model.BlobIdentifier) error {
	key, err := v.key(ref)
	if err != nil {
		return err
	}
	exists, err := v.Has(ref)
	if err != nil {
		return err
	}
	if !exists {
		return notFound(ref)
	}
	_, err = v.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}

// Compile-time check that S3Vault implements guardian.BlobStore
var _ guardian.BlobStore = (*S3Vault)(nil)
