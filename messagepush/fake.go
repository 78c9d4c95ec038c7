package messagepush

import (
	"context"
	"sync"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/stakebatch/batch-deposit-service/models"
)

// fakeMessageLimit is the number of messages kept per topic
const fakeMessageLimit = 100

// fakeProducer keeps the latest messages of every topic in memory
type fakeProducer struct {
	mu       sync.Mutex
	cfg      Config
	messages map[string][]string
}

func newFakeProducer(cfg Config) *fakeProducer {
	return &fakeProducer{cfg: cfg, messages: make(map[string][]string)}
}

func (p *fakeProducer) Produce(msg interface{}, optFns ...ProduceOption) error {
	opts := resolveOptions(p.cfg, optFns)
	value, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	topic := append(p.messages[opts.topic], value)
	if len(topic) > fakeMessageLimit {
		topic = topic[len(topic)-fakeMessageLimit:]
	}
	p.messages[opts.topic] = topic
	log.Debugf("produced to fake producer: topic[%s] key[%s]", opts.topic, opts.pushKey)
	return nil
}

func (p *fakeProducer) PushEvents(ctx context.Context, events []models.Event) error {
	envelopes, err := eventMessages(ctx, events)
	if err != nil {
		return err
	}
	for _, e := range envelopes {
		if err := p.Produce(e, WithPushKey(e.Account)); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProducer) Close() error {
	return nil
}

// drain returns and forgets the messages kept for topic
func (p *fakeProducer) drain(topic string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.messages[topic]
	delete(p.messages, topic)
	return msgs
}
