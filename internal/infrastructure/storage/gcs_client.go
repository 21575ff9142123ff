package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"marketchat/pkg/errors"
)

// CloudStorageClient checks that attachment references sent with a message
// point at objects that exist in the attachments bucket. Uploads happen
// elsewhere; messaging only stores the references.
type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
}

func NewCloudStorageClient(ctx context.Context, bucketName string, opts ...option.ClientOption) (*CloudStorageClient, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	return &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// ObjectName extracts the object path from a reference. Accepted forms are
// gs://bucket/path, https://storage.googleapis.com/bucket/path and a bare
// object path inside the configured bucket.
func ObjectName(bucket, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	for _, prefix := range []string{"gs://", "https://storage.googleapis.com/"} {
		if !strings.HasPrefix(ref, prefix) {
			continue
		}
		parts := strings.SplitN(ref[len(prefix):], "/", 2)
		if len(parts) != 2 || parts[0] != bucket || parts[1] == "" {
			return "", fmt.Errorf("attachment %q is not in bucket %s", ref, bucket)
		}
		return parts[1], nil
	}
	if ref == "" || strings.Contains(ref, "://") {
		return "", fmt.Errorf("invalid attachment reference %q", ref)
	}
	return strings.TrimPrefix(ref, "/"), nil
}

func (c *CloudStorageClient) CheckAttachments(ctx context.Context, refs []string) error {
	bucket := c.client.Bucket(c.bucketName)
	for _, ref := range refs {
		name, err := ObjectName(c.bucketName, ref)
		if err != nil {
			return errors.InvalidArgument(err.Error())
		}
		if _, err := bucket.Object(name).Attrs(ctx); err != nil {
			if stderrors.Is(err, storage.ErrObjectNotExist) {
				return errors.InvalidArgument(fmt.Sprintf("Attachment %s does not exist", ref))
			}
			return errors.Internal("Failed to check attachment", err)
		}
	}
	return nil
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}
