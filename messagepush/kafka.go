package messagepush

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/stakebatch/batch-deposit-service/models"
)

type kafkaProducer struct {
	producer sarama.SyncProducer
	cfg      Config
}

func newKafkaProducerFromConfig(cfg Config) (*kafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	if err := setupSASL(config, cfg); err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "messagepush: creating sync producer")
	}
	return newKafkaProducer(producer, cfg), nil
}

// setupSASL enables SASL_SSL when the credentials and the CA cert are all configured
func setupSASL(config *sarama.Config, cfg Config) error {
	if cfg.Username == "" || cfg.Password == "" || cfg.RootCAPath == "" {
		return nil
	}
	rootCA, err := os.ReadFile(cfg.RootCAPath)
	if err != nil {
		return errors.Wrap(err, "messagepush: reading root CA cert")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootCA) {
		return errors.Errorf("messagepush: no certificate found in %s", cfg.RootCAPath)
	}
	config.Net.SASL.Enable = true
	config.Net.SASL.User = cfg.Username
	config.Net.SASL.Password = cfg.Password
	config.Net.TLS.Enable = true
	config.Net.TLS.Config = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return nil
}

func newKafkaProducer(producer sarama.SyncProducer, cfg Config) *kafkaProducer {
	return &kafkaProducer{producer: producer, cfg: cfg}
}

func (p *kafkaProducer) message(msg interface{}, optFns []ProduceOption) (*sarama.ProducerMessage, error) {
	opts := resolveOptions(p.cfg, optFns)
	value, err := encodeMessage(msg)
	if err != nil {
		return nil, err
	}
	m := &sarama.ProducerMessage{Topic: opts.topic, Value: sarama.StringEncoder(value)}
	if opts.pushKey != "" {
		m.Key = sarama.StringEncoder(opts.pushKey)
	}
	return m, nil
}

func (p *kafkaProducer) Produce(msg interface{}, optFns ...ProduceOption) error {
	m, err := p.message(msg, optFns)
	if err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(m)
	if err != nil {
		return errors.Wrap(err, "messagepush: send message")
	}
	log.Debugf("produced to kafka: topic[%s] partition[%d] offset[%d]", m.Topic, partition, offset)
	return nil
}

// PushEvents sends all events in one request so a broker failure drops none or all of them
func (p *kafkaProducer) PushEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	envelopes, err := eventMessages(ctx, events)
	if err != nil {
		return err
	}
	batch := make([]*sarama.ProducerMessage, 0, len(envelopes))
	for _, e := range envelopes {
		m, err := p.message(e, []ProduceOption{WithPushKey(e.Account)})
		if err != nil {
			return err
		}
		batch = append(batch, m)
	}
	if err := p.producer.SendMessages(batch); err != nil {
		return errors.Wrap(err, "messagepush: send events")
	}
	log.Debugf("produced %d events to kafka topic %s", len(batch), p.cfg.Topic)
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.producer.Close()
}
