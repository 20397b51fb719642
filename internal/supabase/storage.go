package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

type bucketAPI interface {
	UploadFile(bucketId string, relativePath string, data io.Reader, fileOptions ...storage.FileOptions) (storage.FileUploadResponse, error)
	RemoveFile(bucketId string, paths []string) ([]storage.FileUploadResponse, error)
}

type StorageClient struct {
	client  bucketAPI
	bucket  string
	baseURL string
}

func NewStorageClient(supabaseURL, apiKey, bucket string) *StorageClient {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	return newStorageClient(storage.NewClient(baseURL+"/storage/v1", apiKey, nil), baseURL, bucket)
}

func newStorageClient(client bucketAPI, supabaseURL, bucket string) *StorageClient {
	return &StorageClient{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(supabaseURL, "/"),
	}
}

// Put uploads data to path, replacing any existing object, and returns its
// public URL. The storage API takes no context.
func (s *StorageClient) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	upsert := true
	_, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return s.PublicURL(path), nil
}

func (s *StorageClient) Delete(_ context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := s.client.RemoveFile(s.bucket, paths); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

func (s *StorageClient) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path)
}
