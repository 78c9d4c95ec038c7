package messagepush

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/stakebatch/batch-deposit-service/models"
)

// EventProducer publishes contract events to the message queue
type EventProducer interface {
	// Produce sends one message. Strings are sent as they are, anything else is encoded to JSON.
	Produce(msg interface{}, optFns ...ProduceOption) error
	// PushEvents sends the events of one committed operation, keyed by account
	PushEvents(ctx context.Context, events []models.Event) error
	Close() error
}

type produceOptions struct {
	topic   string
	pushKey string
}

// ProduceOption overrides a default of the producer for one message
type ProduceOption func(opts *produceOptions)

// WithTopic overrides the default topic
func WithTopic(topic string) ProduceOption {
	return func(opts *produceOptions) {
		opts.topic = topic
	}
}

// WithPushKey overrides the default message key
func WithPushKey(key string) ProduceOption {
	return func(opts *produceOptions) {
		opts.pushKey = key
	}
}

func resolveOptions(cfg Config, optFns []ProduceOption) produceOptions {
	opts := produceOptions{topic: cfg.Topic, pushKey: cfg.PushKey}
	for _, f := range optFns {
		f(&opts)
	}
	return opts
}

// NewEventProducer creates the producer described by cfg
func NewEventProducer(cfg Config) (EventProducer, error) {
	if cfg.UseFakeProducer {
		log.Infof("messagepush: using in-memory producer, topic %s", cfg.Topic)
		return newFakeProducer(cfg), nil
	}
	log.Infof("messagepush: connecting to kafka brokers %v, topic %s", cfg.Brokers, cfg.Topic)
	p, err := newKafkaProducerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}
