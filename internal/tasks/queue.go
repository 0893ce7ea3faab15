package tasks

import (
  "context"
  "encoding/json"
  "fmt"
  "time"

  "github.com/google/uuid"
  "github.com/redis/go-redis/v9"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/utils"
)

// Job names dispatched through the queue.
const (
  JobProcessRecord = "process_record"
)

// Envelope is the JSON payload pushed onto the broker list.
type Envelope struct {
  ID         string            `json:"id"`
  Job        string            `json:"job"`
  Payload    map[string]string `json:"payload"`
  EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Queue hands work to the background worker.
type Queue interface {
  Enqueue(ctx context.Context, job string, payload map[string]string) error
}

func queueKey(job string) string {
  return "tasks:" + job
}

// RedisQueue is the production broker, one Redis list per job name.
type RedisQueue struct {
  log    *logger.Logger
  client *redis.Client
}

func NewRedisQueue(log *logger.Logger) (*RedisQueue, error) {
  serviceLog := log.With("service", "RedisQueue")

  addr := utils.GetEnv("REDIS_ADDR", "localhost:6379", serviceLog)
  password := utils.GetEnv("REDIS_PASSWORD", "", serviceLog)
  db := utils.GetEnvAsInt("REDIS_DB", 0, serviceLog)

  client := redis.NewClient(&redis.Options{
    Addr:     addr,
    Password: password,
    DB:       db,
  })

  ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
  defer cancel()
  if err := client.Ping(ctx).Err(); err != nil {
    return nil, fmt.Errorf("redis ping: %w", err)
  }

  return &RedisQueue{log: serviceLog, client: client}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job string, payload map[string]string) error {
  env := Envelope{
    ID:         uuid.New().String(),
    Job:        job,
    Payload:    payload,
    EnqueuedAt: time.Now().UTC(),
  }
  raw, err := json.Marshal(env)
  if err != nil {
    return fmt.Errorf("marshal task envelope: %w", err)
  }
  if err := q.client.LPush(ctx, queueKey(job), raw).Err(); err != nil {
    return fmt.Errorf("enqueue %s: %w", job, err)
  }
  q.log.Info("Task enqueued", "job", job, "task_id", env.ID)
  return nil
}

func (q *RedisQueue) Client() *redis.Client {
  return q.client
}

func (q *RedisQueue) Close() error {
  return q.client.Close()
}
