package outbox

import (
	"strings"

	wkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/code19m/errx"

	"github.com/rise-and-shine/aggregate/logger"
)

// Publisher delivers outbox entries to their destination topics.
type Publisher interface {
	Publish(topic string, messages ...*message.Message) error
	Close() error
}

// NewKafkaPublisher creates a watermill Kafka publisher partitioned by
// aggregate id, so events of one aggregate stay ordered.
func NewKafkaPublisher(cfg WorkerConfig, log logger.Logger) (Publisher, error) {
	saramaCfg := wkafka.DefaultSaramaSyncPublisherConfig()
	saramaCfg.ClientID = cfg.ServiceName

	marshaler := wkafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		partitionKey := msg.Metadata.Get("aggregate_id")
		if partitionKey == "" {
			return "", errx.New("aggregate_id metadata is empty")
		}
		return partitionKey, nil
	})

	publisher, err := wkafka.NewPublisher(
		strings.Split(cfg.Brokers, ","),
		marshaler,
		saramaCfg,
		newLoggerAdapter(log.Named("outbox_publisher")),
	)
	if err != nil {
		return nil, errx.Wrap(err)
	}

	return publisher, nil
}
