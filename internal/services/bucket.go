package services

import (
  "bytes"
  "context"
  "fmt"
  "io"
  "os"
  "time"

  "cloud.google.com/go/storage"
  "google.golang.org/api/option"

  "github.com/medvault/medvault-backend/internal/logger"
)

// BucketService is the blob store adapter: opaque put/get/presign over the
// record bucket. Keys follow records/{patientID}/{recordID}.{ext}.
type BucketService interface {
  UploadFile(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
  DownloadFile(ctx context.Context, key string) ([]byte, error)
  SignedURL(key string, ttl time.Duration) (string, error)
  GetPublicURL(key string) string
}

type bucketService struct {
  log           *logger.Logger
  storageClient *storage.Client
  bucketName    string
  cdnDomain     string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
  serviceLog := log.With("service", "BucketService")
  bucket := os.Getenv("GCS_BUCKET_NAME")
  if bucket == "" {
    return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
  }
  cdnDomain := os.Getenv("CDN_DOMAIN")
  saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")
  if saPath == "" {
    serviceLog.Warn("GOOGLE_APPLICATION_CREDENTIALS_JSON not set, storage client will rely on ADC")
  }
  ctx := context.Background()
  var stClient *storage.Client
  var err error
  if saPath != "" {
    stClient, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
  } else {
    stClient, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
  }
  if err != nil {
    return nil, fmt.Errorf("create storage client: %w", err)
  }
  return &bucketService{
    log:           serviceLog,
    storageClient: stClient,
    bucketName:    bucket,
    cdnDomain:     cdnDomain,
  }, nil
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()
  w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
  if contentType != "" {
    w.ContentType = contentType
  }
  if len(metadata) > 0 {
    w.Metadata = metadata
  }
  if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
    _ = w.Close()
    return fmt.Errorf("write object %q: %w", key, err)
  }
  if err := w.Close(); err != nil {
    return fmt.Errorf("close writer for %q: %w", key, err)
  }
  return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) ([]byte, error) {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()
  rc, err := bs.storageClient.Bucket(bs.bucketName).Object(key).NewReader(ctx)
  if err != nil {
    return nil, fmt.Errorf("open object %q: %w", key, err)
  }
  defer rc.Close()
  data, err := io.ReadAll(rc)
  if err != nil {
    return nil, fmt.Errorf("read object %q: %w", key, err)
  }
  return data, nil
}

func (bs *bucketService) SignedURL(key string, ttl time.Duration) (string, error) {
  if ttl <= 0 {
    ttl = time.Hour
  }
  url, err := bs.storageClient.Bucket(bs.bucketName).SignedURL(key, &storage.SignedURLOptions{
    Method:  "GET",
    Expires: time.Now().Add(ttl),
  })
  if err != nil {
    return "", fmt.Errorf("sign url for %q: %w", key, err)
  }
  return url, nil
}

func (bs *bucketService) GetPublicURL(key string) string {
  if bs.cdnDomain != "" {
    return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
  }
  return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}
