package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 rejects multipart parts below 5 MiB.
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter against the archive bucket.
type Writer struct {
	sdk    *s3.Client
	bucket string
}

// NewWriter returns a Writer targeting the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		sdk:    c.S3(),
		bucket: c.Bucket(),
	}
}

// Put uploads an object in a single request. Settlement snapshots are small
// enough that this is the common path.
func (w *Writer) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := w.sdk.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// PutMultipart streams a large object through the SDK upload manager, which
// splits it into concurrent parts. partSize is clamped up to the S3 minimum.
func (w *Writer) PutMultipart(ctx context.Context, key string, body io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}

	uploader := manager.NewUploader(w.sdk, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   body,
	}); err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", key, err)
	}
	return nil
}
