package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryMessage struct {
	id        string
	body      string
	visibleAt time.Time
}

// MemoryQueue is an in-process queue for local runs and tests. Messages are
// lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string][]*memoryMessage
	nextID int
	now    func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		queues: make(map[string][]*memoryMessage),
		now:    time.Now,
	}
}

func (q *MemoryQueue) Receive(_ context.Context, queueID string, max int, visibility time.Duration) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var messages []Message
	for _, m := range q.queues[queueID] {
		if len(messages) >= max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		m.visibleAt = now.Add(visibility)
		messages = append(messages, Message{Body: m.body, ReceiptToken: m.id})
	}
	return messages, nil
}

func (q *MemoryQueue) Delete(_ context.Context, queueID, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.queues[queueID]
	for i, m := range msgs {
		if m.id == receipt {
			q.queues[queueID] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Send(_ context.Context, queueID, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	q.queues[queueID] = append(q.queues[queueID], &memoryMessage{
		id:   strconv.Itoa(q.nextID),
		body: body,
	})
	return nil
}

func (q *MemoryQueue) HealthCheck(_ context.Context, _ string) error {
	return nil
}

// Len is the number of messages in the queue, visible or not.
func (q *MemoryQueue) Len(queueID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queueID])
}
