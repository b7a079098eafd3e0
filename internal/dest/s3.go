package dest

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"obs-go/internal/obs"
)

// S3Destination stores exported archives in an S3 bucket under an
// optional key prefix. Credentials come exclusively from the SDK's
// default chain (environment, shared config, instance role); they are
// never read from this program's configuration.
type S3Destination struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

var _ obs.Destination = (*S3Destination)(nil)

// NewS3Destination creates an S3 destination for the given bucket.
func NewS3Destination(name, bucket, prefix, region string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Destination{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// Put uploads an archive under the given name.
func (d *S3Destination) Put(name string, r io.Reader, size int64) error {
	_, err := d.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading to s3: %w", err)
	}
	return nil
}

// Get downloads a stored archive by name and writes it to w.
func (d *S3Destination) Get(name string, w io.Writer) error {
	out, err := d.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
	})
	if err != nil {
		return fmt.Errorf("downloading from s3: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3 object: %w", err)
	}
	return nil
}

// ValidateSetup verifies the bucket is reachable with the ambient
// credentials.
func (d *S3Destination) ValidateSetup() error {
	_, err := d.client.HeadBucket(context.Background(), &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", d.bucket, err)
	}
	return nil
}

func (d *S3Destination) key(name string) string {
	if d.prefix == "" {
		return name
	}
	return path.Join(d.prefix, name)
}

