package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"patientdocs/internal/config"
)

// minioStorage implements the Storage interface using an S3-compatible backend
// (MinIO, AWS S3, etc.). It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIO creates a new S3-compatible storage adapter backed by MinIO.
// It validates connectivity and ensures the bucket exists.
func NewMinIO(cfg config.MinIOConfig) (Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := EnsureBucket(ctx, cli, cfg.Bucket); err != nil {
		return nil, err
	}

	return &minioStorage{client: cli, bucket: cfg.Bucket}, nil
}

// EnsureBucket makes sure the bucket exists, creating it if missing.
// It returns whether the bucket was created by this call, so a provisioning
// failure is never mistaken for "already exists".
func EnsureBucket(ctx context.Context, cli *minio.Client, bucket string) (created bool, err error) {
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return false, fmt.Errorf("create bucket: %w", err)
	}
	return true, nil
}

// Upload writes the file under a fresh per-patient key with descriptive metadata.
func (m *minioStorage) Upload(ctx context.Context, patientID, fileName string, data []byte, mediaType string) (UploadResult, error) {
	if err := ValidatePatientID(patientID); err != nil {
		return UploadResult{}, err
	}

	sanitized := SanitizeFileName(fileName)
	key := BuildKey(patientID, sanitized)

	opts := minio.PutObjectOptions{
		ContentType: mediaType,
		UserMetadata: map[string]string{
			"original-filename":  fileName,
			"sanitized-filename": sanitized,
			"patient-id":         patientID,
			"uploaded-at":        time.Now().UTC().Format(time.RFC3339),
		},
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return UploadResult{}, fmt.Errorf("put object: %w", err)
	}

	return UploadResult{
		Key:           key,
		URL:           m.directURL(key),
		SanitizedName: sanitized,
	}, nil
}

// Download returns the full byte content of an object.
func (m *minioStorage) Download(ctx context.Context, keyOrURL string) ([]byte, error) {
	key, err := NormalizeKey(keyOrURL, m.bucket)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// ListByPatient lists all objects under the patient's prefix. A presign
// failure for one entry silently falls back to that entry's direct URL.
func (m *minioStorage) ListByPatient(ctx context.Context, patientID string) ([]Entry, error) {
	if err := ValidatePatientID(patientID); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    patientID + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}

		entry := Entry{
			Key:          obj.Key,
			Size:         obj.Size,
			URL:          m.directURL(obj.Key),
			LastModified: obj.LastModified,
		}
		if signed, err := m.PresignGet(ctx, obj.Key, 24*time.Hour); err == nil {
			entry.URL = signed
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes an object by key or URL.
func (m *minioStorage) Delete(ctx context.Context, keyOrURL string) error {
	key, err := NormalizeKey(keyOrURL, m.bucket)
	if err != nil {
		return err
	}
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

// PresignGet generates a pre-signed read-only URL with the specified validity.
// S3-style signatures carry no start time, so the URL is valid from signing;
// no clock-skew allowance on the start is possible (or needed) here.
func (m *minioStorage) PresignGet(ctx context.Context, keyOrURL string, validity time.Duration) (string, error) {
	key, err := NormalizeKey(keyOrURL, m.bucket)
	if err != nil {
		return "", err
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, validity, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

func (m *minioStorage) directURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", m.client.EndpointURL(), m.bucket, key)
}
