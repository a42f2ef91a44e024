package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubPublisher publishes stock events to a Google Pub/Sub topic.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher uses Application Default Credentials unless credJSON is provided.
func NewPubSubPublisher(ctx context.Context, projectID, credJSON, topicName string) (*PubSubPublisher, error) {
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	if topicName == "" {
		return nil, errors.New("topic is required")
	}

	var (
		client  *pubsub.Client
		err     error
		attempt int
	)
	for {
		attempt++
		if credJSON != "" {
			client, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			client, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			break
		}
		if attempt >= 5 {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		sleep := backoff(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		time.Sleep(sleep)
	}

	topic, err := createTopicIfNotExists(ctx, client, topicName)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	topic.EnableMessageOrdering = true
	log.Printf("pubsub publisher ready (project_id=%s topic=%s)", projectID, topicName)
	return &PubSubPublisher{client: client, topic: topic}, nil
}

func createTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// Publish returns the Pub/Sub server-assigned message ID.
// key is used as ordering key so events of one product stay ordered.
func (p *PubSubPublisher) Publish(ctx context.Context, key string, body []byte) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        body,
		OrderingKey: key,
		Attributes:  map[string]string{"product_id": key},
	})
	id, err := result.Get(ctx)
	if err != nil {
		// a failed publish pauses the ordering key until resumed
		p.topic.ResumePublish(key)
		return "", err
	}
	return id, nil
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
