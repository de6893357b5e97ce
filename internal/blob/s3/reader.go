package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Reader implements domain.BlobReader against the archive bucket. Operators
// use it to pull settlement snapshots back out for audits.
type Reader struct {
	sdk    *s3.Client
	bucket string
}

// NewReader returns a Reader targeting the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{
		sdk:    c.S3(),
		bucket: c.Bucket(),
	}
}

// Get streams the object at key. The caller closes the returned body. A
// missing object maps to domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := r.sdk.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			err = domain.ErrNotFound
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	return out.Body, nil
}

// List collects metadata for every object under prefix, walking all result
// pages. ContentType is left empty since ListObjectsV2 never returns it.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(r.sdk, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})

	var infos []domain.BlobInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				Path: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Exists reports whether an object is present at key.
func (r *Reader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.sdk.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: head %s: %w", key, err)
	}
	return true, nil
}

// isNotFound matches both the typed SDK errors and the bare 404 that
// HeadObject (and several compatible providers) return instead of NoSuchKey.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}

	type statusError interface {
		HTTPStatusCode() int
	}
	var se statusError
	return errors.As(err, &se) && se.HTTPStatusCode() == 404
}

var _ domain.BlobReader = (*Reader)(nil)
