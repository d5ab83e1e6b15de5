package databus

import (
	"context"
	"strings"

	"github.com/Shopify/sarama"
	"moff.io/wallet-bridge/internal/config"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// DataBus publishes to kafka. Event topics are namespaced under a common
// prefix, e.g. "wallet-bridge.state_changed".
type DataBus struct {
	producer sarama.SyncProducer
	prefix   string
}

func NewKafka(hosts, prefix string) (*DataBus, error) {
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(strings.Split(hosts, ","), conf)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	log.Info("Kafka producer initialized...")
	return NewWithProducer(p, prefix), nil
}

func NewWithProducer(p sarama.SyncProducer, prefix string) *DataBus {
	return &DataBus{producer: p, prefix: prefix}
}

// New returns the publisher selected by conf.
func New(conf config.DataBus) (Publisher, error) {
	switch conf.Driver {
	case "", config.DriverLog:
		return LogPublisher{}, nil
	case config.DriverKafka:
		bus, err := NewKafka(conf.KafkaServers, conf.Topic)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case config.DriverSQS:
		q, err := NewSQS(context.Background(), conf.Region, conf.QueueURL, conf.Topic)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, errors.Errorf("unknown databus driver %q", conf.Driver)
	}
}

func (db *DataBus) topic(name string) string {
	if db.prefix == "" {
		return name
	}
	return db.prefix + "." + name
}

func (db *DataBus) PublishRaw(topic string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	partition, offset, err := db.producer.SendMessage(&sarama.ProducerMessage{
		Topic: db.topic(topic),
		Value: sarama.ByteEncoder(raw)})
	if err != nil {
		return errors.WrapAndReport(err, "produce message")
	}
	log.Debugf("produce message success-partition: %d, offset: %d", partition, offset)
	return nil
}

func (db *DataBus) Publish(e Event) error {
	return db.PublishRaw(e.Topic(), e.Serialize())
}

func (db *DataBus) Close() error {
	return db.producer.Close()
}
