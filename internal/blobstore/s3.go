package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

var _ Store = (*S3Store)(nil)

// S3Store keeps reports in an S3 bucket named after the container.
type S3Store struct {
	s3     *s3.S3
	bucket string
	region string
}

func NewS3(bucket, region string) (*S3Store, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return &S3Store{s3: s3.New(sess), bucket: bucket, region: region}, nil
}

func (s *S3Store) Container() string { return s.bucket }

func (s *S3Store) EnsureContainer(ctx context.Context) (bool, error) {
	_, err := s.s3.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return false, nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); !ok || reqErr.StatusCode() != 404 {
		return false, fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
			LocationConstraint: aws.String(s.region),
		}
	}
	if _, err := s.s3.CreateBucketWithContext(ctx, input); err != nil {
		return false, fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	return true, nil
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)},
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, o := range page.Contents {
				objects = append(objects, Object{
					Name:     aws.StringValue(o.Key),
					Size:     aws.Int64Value(o.Size),
					Modified: aws.TimeValue(o.LastModified),
				})
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("listing bucket %s: %w", s.bucket, err)
	}
	return objects, nil
}
