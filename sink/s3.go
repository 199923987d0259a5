package sink

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options customises NewS3.
type S3Options struct {
	// ContentType is set as the uploaded object's Content-Type if non-empty.
	ContentType string

	// ModifyPutObjectInput can be used to modify the s3.PutObjectInput passed to manager.Uploader.Upload.
	//
	// Useful if you need to add ExpectedBucketOwner or StorageClass.
	ModifyPutObjectInput func(*s3.PutObjectInput)

	// UploaderOptions customises the manager.Uploader used to upload the object.
	UploaderOptions []func(*manager.Uploader)
}

// WithUploadPartLogger logs every successfully uploaded part.
func WithUploadPartLogger(logger *log.Logger) func(*S3Options) {
	return func(opts *S3Options) {
		opts.UploaderOptions = append(opts.UploaderOptions, LogSuccessfulUploadPart(logger))
	}
}

// S3 streams written chunks to an S3 object using manager.Uploader.
//
// The upload starts at Init and completes at Finalize. Chunks are handed over to the uploader through an io.Pipe so
// WriteChunk blocks until the uploader has consumed them.
type S3 struct {
	Bucket, Key string

	uploader *manager.Uploader
	opts     S3Options
	pw       *io.PipeWriter
	done     chan struct{}
	out      *manager.UploadOutput
	err      error
}

var _ Sink[*manager.UploadOutput] = &S3{}

// NewS3 returns a sink that uploads to the given bucket and key.
func NewS3(client manager.UploadAPIClient, bucket, key string, optFns ...func(*S3Options)) *S3 {
	opts := S3Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &S3{
		Bucket:   bucket,
		Key:      key,
		uploader: manager.NewUploader(client, opts.UploaderOptions...),
		opts:     opts,
	}
}

func (s *S3) Init(ctx context.Context) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	}
	if s.opts.ContentType != "" {
		input.ContentType = aws.String(s.opts.ContentType)
	}
	if s.opts.ModifyPutObjectInput != nil {
		s.opts.ModifyPutObjectInput(input)
	}

	pr, pw := io.Pipe()
	input.Body = pr
	s.pw, s.done = pw, make(chan struct{})

	go func() {
		defer close(s.done)

		s.out, s.err = s.uploader.Upload(ctx, input)
		if s.err != nil {
			_ = pr.CloseWithError(s.err)
			return
		}

		_ = pr.Close()
	}()

	return nil
}

func (s *S3) WriteChunk(_ context.Context, p []byte) error {
	if _, err := s.pw.Write(p); err != nil {
		return &WriteError{Err: fmt.Errorf("upload to s3 error: %w", err)}
	}

	return nil
}

func (s *S3) Finalize(_ context.Context) (*manager.UploadOutput, error) {
	_ = s.pw.Close()
	<-s.done

	if s.err != nil {
		return nil, &WriteError{Err: fmt.Errorf("upload to s3 error: %w", s.err)}
	}

	return s.out, nil
}

// Abort stops the upload without completing it.
//
// The pipe feeding manager.Uploader is closed with err, so the uploader fails and aborts any multipart upload it
// started. Abort blocks until the uploader has returned. Calling Abort before Init is a no-op.
func (s *S3) Abort(err error) {
	if s.pw == nil {
		return
	}
	if err == nil {
		err = ErrAborted
	}

	_ = s.pw.CloseWithError(err)
	<-s.done
}

var _ Aborter = &S3{}

// LogSuccessfulUploadPart wraps manager.Uploader's client so that every successfully uploaded part is logged.
//
// The logger keeps a running tally of the completed parts, and the log messages will be in this format:
// `uploaded %d parts so far`. Objects small enough to be sent with a single PutObject do not log anything.
func LogSuccessfulUploadPart(logger *log.Logger) func(*manager.Uploader) {
	return func(uploader *manager.Uploader) {
		uploader.S3 = &loggingUploadAPIClient{UploadAPIClient: uploader.S3, logger: logger}
	}
}

type loggingUploadAPIClient struct {
	manager.UploadAPIClient
	logger *log.Logger
	n      atomic.Int32
}

func (l *loggingUploadAPIClient) UploadPart(ctx context.Context, input *s3.UploadPartInput, f ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	o, err := l.UploadAPIClient.UploadPart(ctx, input, f...)
	if err == nil {
		l.logger.Printf("uploaded %d parts so far", l.n.Add(1))
	}
	return o, err
}
