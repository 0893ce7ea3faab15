package logger

import (
  "strings"
  "testing"
)

func TestSanitizeValueRedactsSecrets(t *testing.T) {
  for _, key := range []string{"access_token", "authorization", "password", "jwt_secret", "api_key", "email", "phone", "medical_id"} {
    if got := sanitizeValue(key, "sensitive"); got != "[REDACTED]" {
      t.Errorf("key %q: got %v, want [REDACTED]", key, got)
    }
  }
}

func TestSanitizeValueHashesIdentifiers(t *testing.T) {
  for _, key := range []string{"user_id", "patient_id", "uploader_id"} {
    got, ok := sanitizeValue(key, "8d7f2a6e-0001-4a5b-9c3d-abcdefabcdef").(string)
    if !ok || !strings.HasPrefix(got, "hash:") {
      t.Errorf("key %q: got %v, want hash: prefix", key, got)
    }
    if strings.Contains(got, "8d7f2a6e") {
      t.Errorf("key %q: raw identifier leaked into %q", key, got)
    }
  }
}

func TestSanitizeValueHashIsStable(t *testing.T) {
  a := sanitizeValue("user_id", "abc")
  b := sanitizeValue("user_id", "abc")
  if a != b {
    t.Fatalf("hash not stable: %v vs %v", a, b)
  }
}

func TestSanitizeValuePassesOrdinaryValues(t *testing.T) {
  if got := sanitizeValue("record_count", 42); got != 42 {
    t.Fatalf("ordinary value altered: %v", got)
  }
  if got := sanitizeValue("status", "processed"); got != "processed" {
    t.Fatalf("ordinary string altered: %v", got)
  }
}

func TestLooksLikeJWT(t *testing.T) {
  jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig"
  if !looksLikeJWT(jwt) {
    t.Fatal("real JWT shape not detected")
  }
  if looksLikeJWT("just.a.string") {
    t.Fatal("short dotted string misdetected as JWT")
  }
  if looksLikeJWT("") {
    t.Fatal("empty string misdetected as JWT")
  }
}
