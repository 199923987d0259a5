package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client abstracts the APIs that are needed to implement S3.
type S3Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Options customises NewS3.
type S3Options struct {
	// Size is the size of the object if known ahead of time.
	//
	// By default, Size is -1 which causes Init to make a HeadObject call to determine the size.
	Size int64

	// ModifyGetObjectInput can be used to modify the GetObject input parameters such as adding ExpectedBucketOwner.
	ModifyGetObjectInput func(*s3.GetObjectInput)

	// ModifyHeadObjectInput can be used to modify the HeadObject input parameters such as adding
	// ExpectedBucketOwner.
	ModifyHeadObjectInput func(*s3.HeadObjectInput)
}

// WithExpectedBucketOwner adds the expected bucket owner to every HeadObject and GetObject call.
func WithExpectedBucketOwner(expectedBucketOwner string) func(*S3Options) {
	return func(opts *S3Options) {
		opts.ModifyHeadObjectInput = func(input *s3.HeadObjectInput) {
			input.ExpectedBucketOwner = aws.String(expectedBucketOwner)
		}
		opts.ModifyGetObjectInput = func(input *s3.GetObjectInput) {
			input.ExpectedBucketOwner = aws.String(expectedBucketOwner)
		}
	}
}

// S3 uses ranged GetObject to read an S3 object without downloading all of it.
//
// Every ReadRange maps to exactly one GetObject call, so callers should read in large chunks.
type S3 struct {
	// Bucket and Key identify the object.
	Bucket, Key string

	client S3Client
	size   int64
	opts   S3Options
}

// NewS3 returns a Source over the S3 object specified by bucket and key.
func NewS3(client S3Client, bucket, key string, optFns ...func(*S3Options)) *S3 {
	opts := S3Options{
		Size:                  -1,
		ModifyGetObjectInput:  func(*s3.GetObjectInput) {},
		ModifyHeadObjectInput: func(*s3.HeadObjectInput) {},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &S3{
		client: client,
		Bucket: bucket,
		Key:    key,
		size:   opts.Size,
		opts:   opts,
	}
}

func (o *S3) Init(ctx context.Context) (int64, error) {
	if o.size >= 0 {
		return o.size, nil
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(o.Key),
	}
	o.opts.ModifyHeadObjectInput(input)

	headObjectOutput, err := o.client.HeadObject(ctx, input)
	if err != nil {
		return 0, &ReadError{Err: fmt.Errorf("determine file size error: %w", err)}
	}

	o.size = aws.ToInt64(headObjectOutput.ContentLength)
	return o.size, nil
}

func (o *S3) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length, o.size); err != nil {
		return nil, err
	}

	b := make([]byte, length)
	if length == 0 {
		return b, nil
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(o.Key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	}
	o.opts.ModifyGetObjectInput(input)

	getObjectOutput, err := o.client.GetObject(ctx, input)
	if err != nil {
		return nil, &ReadError{Offset: offset, Length: length, Err: err}
	}
	defer getObjectOutput.Body.Close()

	if _, err = io.ReadFull(getObjectOutput.Body, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, &ReadError{Offset: offset, Length: length, Err: err}
	}

	return b, nil
}
