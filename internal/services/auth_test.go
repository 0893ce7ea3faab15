package services

import (
  "context"
  "testing"

  "github.com/google/uuid"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/requestdata"
)

func newTestAuthService(t *testing.T) AuthService {
  t.Helper()
  t.Setenv("JWT_SECRET", "test-secret")
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("init logger: %v", err)
  }
  svc, err := NewAuthService(log)
  if err != nil {
    t.Fatalf("init auth service: %v", err)
  }
  return svc
}

func TestAuthServiceRequiresSecret(t *testing.T) {
  t.Setenv("JWT_SECRET", "")
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("init logger: %v", err)
  }
  if _, err := NewAuthService(log); err == nil {
    t.Fatal("expected error without JWT_SECRET")
  }
}

func TestTokenRoundTrip(t *testing.T) {
  svc := newTestAuthService(t)
  userID := uuid.New()

  token, err := svc.IssueToken(userID)
  if err != nil {
    t.Fatalf("issue token: %v", err)
  }
  got, err := svc.ParseToken(token)
  if err != nil {
    t.Fatalf("parse token: %v", err)
  }
  if got != userID {
    t.Fatalf("got %s, want %s", got, userID)
  }
}

func TestParseTokenRejectsGarbage(t *testing.T) {
  svc := newTestAuthService(t)
  if _, err := svc.ParseToken("not.a.token"); err == nil {
    t.Fatal("expected parse error")
  }
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
  svc := newTestAuthService(t)
  token, err := svc.IssueToken(uuid.New())
  if err != nil {
    t.Fatalf("issue token: %v", err)
  }

  t.Setenv("JWT_SECRET", "different-secret")
  log, _ := logger.New("development")
  other, err := NewAuthService(log)
  if err != nil {
    t.Fatalf("init second service: %v", err)
  }
  if _, err := other.ParseToken(token); err == nil {
    t.Fatal("token signed with another secret must not validate")
  }
}

func TestPasswordHashRoundTrip(t *testing.T) {
  svc := newTestAuthService(t)
  hash, err := svc.HashPassword("correct horse battery staple")
  if err != nil {
    t.Fatalf("hash: %v", err)
  }
  if hash == "correct horse battery staple" {
    t.Fatal("password stored in plaintext")
  }
  if err := svc.CheckPassword(hash, "correct horse battery staple"); err != nil {
    t.Fatalf("valid password rejected: %v", err)
  }
  if err := svc.CheckPassword(hash, "wrong"); err == nil {
    t.Fatal("wrong password accepted")
  }
}

func TestSetContextFromToken(t *testing.T) {
  svc := newTestAuthService(t)
  userID := uuid.New()
  token, err := svc.IssueToken(userID)
  if err != nil {
    t.Fatalf("issue token: %v", err)
  }

  ctx, err := svc.SetContextFromToken(context.Background(), token, "10.0.0.1", "test-agent")
  if err != nil {
    t.Fatalf("set context: %v", err)
  }
  rd := requestdata.GetRequestData(ctx)
  if rd == nil {
    t.Fatal("request data missing from context")
  }
  if rd.UserID != userID || rd.IPAddress != "10.0.0.1" || rd.UserAgent != "test-agent" {
    t.Fatalf("unexpected request data: %+v", rd)
  }
}
