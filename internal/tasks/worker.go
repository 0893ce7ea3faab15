package tasks

import (
  "context"
  "encoding/json"
  "errors"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/medvault/medvault-backend/internal/logger"
)

// Handler runs one dequeued task.
type Handler func(ctx context.Context, payload map[string]string) error

// Worker drains job lists with blocking pops and dispatches to registered
// handlers. Handler failures are logged and the task is dropped; retry is
// the enqueuer's call, not the broker's.
type Worker struct {
  log      *logger.Logger
  client   *redis.Client
  handlers map[string]Handler
}

func NewWorker(log *logger.Logger, client *redis.Client) *Worker {
  return &Worker{
    log:      log.With("service", "TaskWorker"),
    client:   client,
    handlers: make(map[string]Handler),
  }
}

func (w *Worker) Register(job string, h Handler) {
  w.handlers[job] = h
}

// Run blocks until ctx is cancelled. One goroutine per registered job.
func (w *Worker) Run(ctx context.Context) {
  for job := range w.handlers {
    go w.loop(ctx, job)
  }
  <-ctx.Done()
}

func (w *Worker) loop(ctx context.Context, job string) {
  key := queueKey(job)
  w.log.Info("Worker loop started", "job", job)

  for {
    if ctx.Err() != nil {
      w.log.Info("Worker loop stopped", "job", job)
      return
    }

    res, err := w.client.BLPop(ctx, 5*time.Second, key).Result()
    if err != nil {
      if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
        continue
      }
      w.log.Error("BLPOP failed", "job", job, "error", err.Error())
      time.Sleep(time.Second)
      continue
    }
    if len(res) < 2 {
      continue
    }

    w.dispatch(ctx, job, []byte(res[1]))
  }
}

func (w *Worker) dispatch(ctx context.Context, job string, raw []byte) {
  var env Envelope
  if err := json.Unmarshal(raw, &env); err != nil {
    w.log.Error("Malformed task envelope dropped", "job", job, "error", err.Error())
    return
  }

  handler, ok := w.handlers[job]
  if !ok {
    w.log.Error("No handler for job", "job", job, "task_id", env.ID)
    return
  }

  start := time.Now()
  if err := handler(ctx, env.Payload); err != nil {
    w.log.Error("Task failed",
      "job", job,
      "task_id", env.ID,
      "duration", time.Since(start).String(),
      "error", err.Error(),
    )
    return
  }
  w.log.Info("Task completed",
    "job", job,
    "task_id", env.ID,
    "duration", time.Since(start).String(),
  )
}
