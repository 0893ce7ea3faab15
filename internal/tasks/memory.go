package tasks

import (
  "context"
  "sync"
)

// MemoryQueue dispatches synchronously to registered handlers. Used in tests
// and as a degraded fallback when Redis is unreachable at startup.
type MemoryQueue struct {
  mu       sync.Mutex
  handlers map[string]Handler
}

func NewMemoryQueue() *MemoryQueue {
  return &MemoryQueue{handlers: make(map[string]Handler)}
}

func (q *MemoryQueue) Register(job string, h Handler) {
  q.mu.Lock()
  defer q.mu.Unlock()
  q.handlers[job] = h
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job string, payload map[string]string) error {
  q.mu.Lock()
  h, ok := q.handlers[job]
  q.mu.Unlock()
  if !ok {
    return nil
  }
  return h(ctx, payload)
}
