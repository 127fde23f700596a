// Package photostore keeps photo evidence in a Firebase Storage bucket.
package photostore

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

type Bucket struct {
	name   string
	handle *storage.BucketHandle
}

// NewBucket opens the named bucket. An empty credentials file uses application default credentials.
func NewBucket(ctx context.Context, credentialsFile, bucketName string) (*Bucket, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{StorageBucket: bucketName}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("get storage client: %w", err)
	}
	handle, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketName, err)
	}

	log.Printf("Photo storage ready: bucket=%s", bucketName)
	return &Bucket{name: bucketName, handle: handle}, nil
}

// Put uploads data under key and returns its public URL.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", key, err)
	}
	return PublicURL(b.name, key), nil
}

func PublicURL(bucket, key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
