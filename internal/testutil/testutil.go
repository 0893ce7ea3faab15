package testutil

import (
  "context"
  "fmt"
  "os"
  "sync"
  "testing"
  "time"

  "github.com/google/uuid"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  gormlogger "gorm.io/gorm/logger"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

// Logger returns a development logger for tests.
func Logger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("init logger: %v", err)
  }
  return log
}

// DB opens the integration database named by TEST_POSTGRES_DSN and migrates
// the schema. Tests calling it are skipped when the variable is unset.
func DB(t *testing.T) *gorm.DB {
  t.Helper()
  dsn := os.Getenv("TEST_POSTGRES_DSN")
  if dsn == "" {
    t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
  }
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    Logger: gormlogger.Default.LogMode(gormlogger.Silent),
  })
  if err != nil {
    t.Fatalf("open test database: %v", err)
  }
  if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
    t.Fatalf("create uuid extension: %v", err)
  }
  err = db.AutoMigrate(
    &types.User{},
    &types.UserRole{},
    &types.Patient{},
    &types.Record{},
    &types.RecordText{},
    &types.RecordEmbedding{},
    &types.SharedAccess{},
    &types.AuditLog{},
  )
  if err != nil {
    t.Fatalf("migrate test schema: %v", err)
  }
  return db
}

// Tx returns a transaction rolled back when the test finishes, so tests
// never leak rows into the shared database.
func Tx(t *testing.T, db *gorm.DB) *gorm.DB {
  t.Helper()
  tx := db.Begin()
  if tx.Error != nil {
    t.Fatalf("begin test transaction: %v", tx.Error)
  }
  t.Cleanup(func() {
    tx.Rollback()
  })
  return tx
}

// SeedUser inserts a user with the given roles.
func SeedUser(t *testing.T, db *gorm.DB, roles ...types.Role) *types.User {
  t.Helper()
  user := &types.User{
    Email:        fmt.Sprintf("user-%s@example.test", uuid.New().String()[:8]),
    PasswordHash: "x",
  }
  for _, r := range roles {
    user.Roles = append(user.Roles, types.UserRole{Role: r})
  }
  if err := db.Create(user).Error; err != nil {
    t.Fatalf("seed user: %v", err)
  }
  return user
}

// SeedPatient inserts a patient owned by the user.
func SeedPatient(t *testing.T, db *gorm.DB, userID uuid.UUID) *types.Patient {
  t.Helper()
  patient := &types.Patient{
    UserID:    userID,
    MedicalID: fmt.Sprintf("MRN-%s", uuid.New().String()[:8]),
    FirstName: "Test",
    LastName:  "Patient",
  }
  if err := db.Create(patient).Error; err != nil {
    t.Fatalf("seed patient: %v", err)
  }
  return patient
}

// SeedRecord inserts a record for the patient in the given status.
func SeedRecord(t *testing.T, db *gorm.DB, patientID, uploadedBy uuid.UUID, status types.RecordStatus, kind types.RecordKind) *types.Record {
  t.Helper()
  record := &types.Record{
    PatientID:  patientID,
    Title:      "test record",
    Kind:       kind,
    FileURL:    types.FileURLPending,
    StorageKey: fmt.Sprintf("records/%s/%s.bin", patientID, uuid.New()),
    UploadedBy: uploadedBy,
    UploadDate: time.Now().UTC(),
    Status:     status,
  }
  if err := db.Create(record).Error; err != nil {
    t.Fatalf("seed record: %v", err)
  }
  return record
}

// FakeBucket is an in-memory blob store.
type FakeBucket struct {
  mu      sync.Mutex
  objects map[string][]byte

  UploadErr   error
  DownloadErr error
}

func NewFakeBucket() *FakeBucket {
  return &FakeBucket{objects: make(map[string][]byte)}
}

func (b *FakeBucket) UploadFile(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
  if b.UploadErr != nil {
    return b.UploadErr
  }
  b.mu.Lock()
  defer b.mu.Unlock()
  b.objects[key] = append([]byte(nil), data...)
  return nil
}

func (b *FakeBucket) DownloadFile(ctx context.Context, key string) ([]byte, error) {
  if b.DownloadErr != nil {
    return nil, b.DownloadErr
  }
  b.mu.Lock()
  defer b.mu.Unlock()
  data, ok := b.objects[key]
  if !ok {
    return nil, fmt.Errorf("object %s not found", key)
  }
  return data, nil
}

func (b *FakeBucket) SignedURL(key string, ttl time.Duration) (string, error) {
  return "https://signed.example.test/" + key, nil
}

func (b *FakeBucket) GetPublicURL(key string) string {
  return "https://cdn.example.test/" + key
}

// Put stores an object directly, bypassing UploadErr.
func (b *FakeBucket) Put(key string, data []byte) {
  b.mu.Lock()
  defer b.mu.Unlock()
  b.objects[key] = data
}

// FakeOpenAI returns deterministic vectors and canned completions, counting
// calls so tests can assert a model was or was not consulted.
type FakeOpenAI struct {
  mu sync.Mutex

  EmbedErr    error
  CompleteErr error
  Completion  string

  EmbedCalls    int
  CompleteCalls int
}

func (f *FakeOpenAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
  f.mu.Lock()
  f.EmbedCalls++
  f.mu.Unlock()
  if f.EmbedErr != nil {
    return nil, f.EmbedErr
  }
  out := make([][]float32, len(inputs))
  for i, in := range inputs {
    out[i] = DeterministicVector(in)
  }
  return out, nil
}

func (f *FakeOpenAI) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
  f.mu.Lock()
  f.CompleteCalls++
  f.mu.Unlock()
  if f.CompleteErr != nil {
    return "", f.CompleteErr
  }
  if f.Completion != "" {
    return f.Completion, nil
  }
  return "canned answer", nil
}

// DeterministicVector hashes text into a fixed 8-dim vector so identical
// inputs embed identically and similarity ordering is stable across runs.
func DeterministicVector(text string) []float32 {
  vec := make([]float32, 8)
  for i, c := range text {
    vec[i%8] += float32(c%31) / 31
  }
  var norm float32
  for _, v := range vec {
    norm += v * v
  }
  if norm == 0 {
    vec[0] = 1
  }
  return vec
}
