package extract

import (
  "context"
  "fmt"
  "strings"
  "time"

  documentai "cloud.google.com/go/documentai/apiv1"
  "cloud.google.com/go/documentai/apiv1/documentaipb"
  "google.golang.org/api/option"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/utils"
)

// DocAIProcessor runs a Document AI OCR processor over raw bytes. It backs
// the PDF extractor for scanned documents where native text comes up empty.
type DocAIProcessor interface {
  ProcessRaw(ctx context.Context, data []byte, mimeType string) (string, error)
  Close() error
}

type docAIProcessor struct {
  log       *logger.Logger
  client    *documentai.DocumentProcessorClient
  processor string
}

// NewDocAIProcessor builds the regional Document AI client. Returns nil (no
// error) when DOCAI_PROCESSOR_ID is unset so callers can treat the fallback
// as optional.
func NewDocAIProcessor(ctx context.Context, log *logger.Logger) (DocAIProcessor, error) {
  serviceLog := log.With("service", "DocAIProcessor")

  projectID := utils.GetEnv("GCP_PROJECT_ID", "", serviceLog)
  location := utils.GetEnv("DOCAI_LOCATION", "us", serviceLog)
  processorID := utils.GetEnv("DOCAI_PROCESSOR_ID", "", serviceLog)
  creds := utils.GetEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "", serviceLog)

  if processorID == "" {
    serviceLog.Info("DOCAI_PROCESSOR_ID not set, scanned document fallback disabled")
    return nil, nil
  }
  if projectID == "" {
    return nil, fmt.Errorf("DOCAI_PROCESSOR_ID set but GCP_PROJECT_ID missing")
  }

  endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
  opts := []option.ClientOption{option.WithEndpoint(endpoint)}
  if creds != "" {
    if strings.HasPrefix(strings.TrimSpace(creds), "{") {
      opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
    } else {
      opts = append(opts, option.WithCredentialsFile(creds))
    }
  }

  client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
  if err != nil {
    return nil, fmt.Errorf("documentai client: %w", err)
  }

  return &docAIProcessor{
    log:       serviceLog,
    client:    client,
    processor: fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID),
  }, nil
}

func (p *docAIProcessor) ProcessRaw(ctx context.Context, data []byte, mimeType string) (string, error) {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()

  req := &documentaipb.ProcessRequest{
    Name: p.processor,
    Source: &documentaipb.ProcessRequest_RawDocument{
      RawDocument: &documentaipb.RawDocument{
        Content:  data,
        MimeType: mimeType,
      },
    },
  }

  resp, err := p.client.ProcessDocument(ctx, req)
  if err != nil {
    return "", fmt.Errorf("documentai ProcessDocument: %w", err)
  }
  if resp == nil || resp.Document == nil {
    return "", nil
  }
  return resp.Document.Text, nil
}

func (p *docAIProcessor) Close() error {
  return p.client.Close()
}
