// Package kafka ships audit events to a Kafka topic. Reads are served by a
// local index store, since a topic cannot be queried by subject.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "onboard/pkg/platform/audit"
)

const headerCategory = "audit-category"

// Producer is the part of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Store struct {
	producer Producer
	topic    string
	index    audit.Store
}

// New returns a store that produces every event to topic and mirrors it into
// index for ListBySubject.
func New(producer Producer, topic string, index audit.Store) *Store {
	return &Store{producer: producer, topic: topic, index: index}
}

// NewClient connects a producer tuned for audit traffic: every in-sync replica
// must acknowledge and records for a session keep their order.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	resp, err := kadm.NewClient(client).CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	record, err := s.record(event)
	if err != nil {
		return err
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return s.index.Append(ctx, event)
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.index.ListBySubject(ctx, subject)
}

// wireEvent is the JSON value of an audit record.
type wireEvent struct {
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	Subject     string    `json:"subject"`
	AffiliateID string    `json:"affiliate_id,omitempty"`
	Action      string    `json:"action"`
	Decision    string    `json:"decision,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Email       string    `json:"email,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

// record keys by subject so one session's events land on one partition.
func (s *Store) record(event audit.Event) (*kgo.Record, error) {
	value, err := json.Marshal(wireEvent{
		Category:    string(event.Category),
		Timestamp:   event.Timestamp.UTC(),
		Subject:     event.Subject,
		AffiliateID: event.AffiliateID,
		Action:      event.Action,
		Decision:    event.Decision,
		Reason:      event.Reason,
		Email:       event.Email,
		RequestID:   event.RequestID,
		ActorID:     event.ActorID,
		ClientIP:    event.ClientIP,
		UserAgent:   event.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return &kgo.Record{
		Topic:     s.topic,
		Key:       []byte(event.Subject),
		Value:     value,
		Timestamp: event.Timestamp,
		Headers:   []kgo.RecordHeader{{Key: headerCategory, Value: []byte(event.Category)}},
	}, nil
}
