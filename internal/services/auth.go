package services

import (
  "context"
  "fmt"
  "time"

  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "golang.org/x/crypto/bcrypt"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/requestdata"
  "github.com/medvault/medvault-backend/internal/utils"
)

// AuthService issues and validates the HS256 access tokens used by the API
// and owns password hashing.
type AuthService interface {
  HashPassword(password string) (string, error)
  CheckPassword(hash string, password string) error
  IssueToken(userID uuid.UUID) (string, error)
  ParseToken(tokenString string) (uuid.UUID, error)
  SetContextFromToken(ctx context.Context, tokenString, ipAddress, userAgent string) (context.Context, error)
}

type authService struct {
  log      *logger.Logger
  secret   []byte
  tokenTTL time.Duration
}

func NewAuthService(log *logger.Logger) (AuthService, error) {
  secret := utils.GetEnv("JWT_SECRET", "", log)
  if secret == "" {
    return nil, fmt.Errorf("missing JWT_SECRET")
  }
  ttlMinutes := utils.GetEnvAsInt("JWT_TTL_MINUTES", 60, log)
  return &authService{
    log:      log.With("service", "AuthService"),
    secret:   []byte(secret),
    tokenTTL: time.Duration(ttlMinutes) * time.Minute,
  }, nil
}

func (s *authService) HashPassword(password string) (string, error) {
  out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
  if err != nil {
    return "", err
  }
  return string(out), nil
}

func (s *authService) CheckPassword(hash string, password string) error {
  return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (s *authService) IssueToken(userID uuid.UUID) (string, error) {
  now := time.Now()
  claims := jwt.RegisteredClaims{
    Subject:   userID.String(),
    IssuedAt:  jwt.NewNumericDate(now),
    ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
  }
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
  return token.SignedString(s.secret)
}

func (s *authService) ParseToken(tokenString string) (uuid.UUID, error) {
  parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
    if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
      return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
    }
    return s.secret, nil
  })
  if err != nil {
    return uuid.Nil, err
  }
  claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
  if !ok || !parsed.Valid {
    return uuid.Nil, fmt.Errorf("invalid token claims")
  }
  userID, err := uuid.Parse(claims.Subject)
  if err != nil {
    return uuid.Nil, fmt.Errorf("invalid subject claim: %w", err)
  }
  return userID, nil
}

func (s *authService) SetContextFromToken(ctx context.Context, tokenString, ipAddress, userAgent string) (context.Context, error) {
  userID, err := s.ParseToken(tokenString)
  if err != nil {
    return ctx, err
  }
  rd := &requestdata.RequestData{
    TokenString: tokenString,
    UserID:      userID,
    IPAddress:   ipAddress,
    UserAgent:   userAgent,
  }
  return requestdata.WithRequestData(ctx, rd), nil
}
