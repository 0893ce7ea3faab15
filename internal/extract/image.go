package extract

import (
  "context"
  "fmt"
  "strings"
  "time"

  vision "cloud.google.com/go/vision/v2/apiv1"
  "cloud.google.com/go/vision/v2/apiv1/visionpb"
  "google.golang.org/api/option"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/utils"
)

// VisionImageExtractor OCRs uploaded images (lab reports photographed on a
// phone, faxed pages, etc) through Cloud Vision document text detection.
type VisionImageExtractor struct {
  log    *logger.Logger
  client *vision.ImageAnnotatorClient
}

func NewVisionImageExtractor(ctx context.Context, log *logger.Logger) (*VisionImageExtractor, error) {
  serviceLog := log.With("service", "VisionImageExtractor")
  creds := utils.GetEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "", serviceLog)

  var opts []option.ClientOption
  if creds != "" {
    if strings.HasPrefix(strings.TrimSpace(creds), "{") {
      opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
    } else {
      opts = append(opts, option.WithCredentialsFile(creds))
    }
  }

  client, err := vision.NewImageAnnotatorClient(ctx, opts...)
  if err != nil {
    return nil, fmt.Errorf("vision client: %w", err)
  }

  return &VisionImageExtractor{
    log:    serviceLog,
    client: client,
  }, nil
}

func (e *VisionImageExtractor) Extract(ctx context.Context, data []byte, filename string) ([]string, error) {
  ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
  defer cancel()

  res, err := e.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
    Requests: []*visionpb.AnnotateImageRequest{{
      Image:    &visionpb.Image{Content: data},
      Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
    }},
  })
  if err != nil {
    return nil, fmt.Errorf("vision DetectDocumentText: %w", err)
  }
  if len(res.GetResponses()) == 0 {
    return nil, nil
  }
  if resErr := res.GetResponses()[0].GetError(); resErr != nil {
    return nil, fmt.Errorf("vision DetectDocumentText: %s", resErr.GetMessage())
  }
  doc := res.GetResponses()[0].GetFullTextAnnotation()
  if doc == nil || strings.TrimSpace(doc.GetText()) == "" {
    return nil, nil
  }
  return []string{doc.GetText()}, nil
}

func (e *VisionImageExtractor) Close() error {
  return e.client.Close()
}
