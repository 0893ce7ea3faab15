package extract

import (
  "archive/zip"
  "bytes"
  "context"
  "encoding/xml"
  "fmt"
  "io"
  "regexp"
  "strings"

  "github.com/medvault/medvault-backend/internal/logger"
)

// NativeTextExtractor handles the grab bag of report uploads that are not
// PDFs, images, or DICOM. It sniffs true content type from bytes rather
// than trusting the extension: plain text and markdown pass through, HTML
// gets its tags stripped, DOCX is unzipped and read from document.xml.
// Anything opaque yields empty text so the registry falls back to the
// no-readable-text sentinel.
type NativeTextExtractor struct {
  log *logger.Logger
}

func NewNativeTextExtractor(log *logger.Logger) *NativeTextExtractor {
  return &NativeTextExtractor{log: log.With("service", "NativeTextExtractor")}
}

func (e *NativeTextExtractor) Extract(ctx context.Context, data []byte, filename string) ([]string, error) {
  if len(data) == 0 {
    return nil, nil
  }

  if isZip(data) {
    text, err := extractDOCX(data)
    if err != nil {
      e.log.Info("Zip upload is not a readable docx", "filename", filename, "error", err.Error())
      return nil, nil
    }
    return []string{text}, nil
  }

  if looksLikeHTML(data) {
    return []string{stripHTML(string(data))}, nil
  }

  if isProbablyText(data) {
    return []string{collapseWhitespace(string(data))}, nil
  }

  // Unknown binary: no error, the sentinel covers it.
  return nil, nil
}

// ------------------------
// Sniff helpers
// ------------------------

func isZip(b []byte) bool {
  // ZIP local file header: PK\x03\x04
  return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeHTML(b []byte) bool {
  s := strings.ToLower(string(b[:min(len(b), 2048)]))
  trimmed := strings.TrimSpace(s)
  if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
    return true
  }
  return strings.Contains(s, "<html") && strings.Contains(s, "</html>")
}

func isProbablyText(b []byte) bool {
  sample := b[:min(len(b), 4096)]
  good := 0
  for _, c := range sample {
    if c == 0x00 {
      return false
    }
    if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
      good++
    }
  }
  return float64(good)/float64(len(sample)) > 0.9
}

// ------------------------
// Format extractors
// ------------------------

func extractDOCX(zipBytes []byte) (string, error) {
  zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
  if err != nil {
    return "", err
  }
  var doc *zip.File
  for _, f := range zr.File {
    if f.Name == "word/document.xml" {
      doc = f
      break
    }
  }
  if doc == nil {
    return "", fmt.Errorf("zip has no word/document.xml")
  }
  rc, err := doc.Open()
  if err != nil {
    return "", err
  }
  raw, readErr := io.ReadAll(rc)
  _ = rc.Close()
  if readErr != nil {
    return "", readErr
  }
  return collapseWhitespace(gatherXMLText(raw, "t")), nil
}

// gatherXMLText concatenates the char data of every element whose local
// name matches tag (<w:t> runs hold the visible text in docx).
func gatherXMLText(xmlBytes []byte, tag string) string {
  dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
  var out strings.Builder
  for {
    tok, err := dec.Token()
    if err != nil {
      break
    }
    se, ok := tok.(xml.StartElement)
    if !ok || se.Name.Local != tag {
      continue
    }
    var v string
    _ = dec.DecodeElement(&v, &se)
    if v != "" {
      out.WriteString(v)
      out.WriteString(" ")
    }
  }
  return out.String()
}

var htmlTagRE = regexp.MustCompile(`(?s)<[^>]*>`)

func stripHTML(s string) string {
  s = htmlTagRE.ReplaceAllString(s, " ")
  s = strings.ReplaceAll(s, "&nbsp;", " ")
  s = strings.ReplaceAll(s, "&amp;", "&")
  return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
  s = strings.ReplaceAll(s, " ", " ")
  return strings.Join(strings.Fields(s), " ")
}
