package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Queue is a visibility-timeout message queue. A received message stays
// invisible to other receivers for the visibility timeout and reappears
// unless it is deleted with its receipt token before then.
type Queue interface {
	Receive(ctx context.Context, queueID string, max int, visibility time.Duration) ([]Message, error)
	Delete(ctx context.Context, queueID, receipt string) error
	Send(ctx context.Context, queueID, body string) error
	HealthCheck(ctx context.Context, queueID string) error
}

type Message struct {
	Body         string
	ReceiptToken string
}

// Job asks for the deletion of one stored tile.
type Job struct {
	Bucket string
	Key    string
}

var ErrInvalidJob = errors.New("invalid job")

func (j Job) Encode() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeJob(body string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return j, fmt.Errorf("%w: %s", ErrInvalidJob, err)
	}
	if j.Bucket == "" || j.Key == "" {
		return j, fmt.Errorf("%w: missing bucket or key in %q", ErrInvalidJob, body)
	}
	return j, nil
}
