package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
)

// SQSQueue uses the queue URL as the queue id.
type SQSQueue struct {
	client sqsiface.SQSAPI
}

func NewSQSQueue(client sqsiface.SQSAPI) *SQSQueue {
	return &SQSQueue{client: client}
}

func (q *SQSQueue) Receive(ctx context.Context, queueURL string, max int, visibility time.Duration) ([]Message, error) {
	output, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: aws.Int64(int64(max)),
		VisibilityTimeout:   aws.Int64(int64(visibility / time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", queueURL, err)
	}

	messages := make([]Message, 0, len(output.Messages))
	for _, m := range output.Messages {
		messages = append(messages, Message{
			Body:         aws.StringValue(m.Body),
			ReceiptToken: aws.StringValue(m.ReceiptHandle),
		})
	}
	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, queueURL, receipt string) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", queueURL, err)
	}
	return nil
}

func (q *SQSQueue) Send(ctx context.Context, queueURL, body string) error {
	_, err := q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", queueURL, err)
	}
	return nil
}

func (q *SQSQueue) HealthCheck(ctx context.Context, queueURL string) error {
	_, err := q.client.GetQueueAttributesWithContext(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: aws.StringSlice([]string{sqs.QueueAttributeNameApproximateNumberOfMessages}),
	})
	return err
}
