package events

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerConfig_GetSaramaConfig(t *testing.T) {
	cfg := ConsumerConfig{
		Brokers:       "localhost:9092",
		KafkaVersion:  "3.6.0",
		InitialOffset: "oldest",
	}

	saramaCfg, err := cfg.getSaramaConfig("orders-svc")
	require.NoError(t, err)

	assert.Equal(t, "orders-svc", cfg.GroupID, "group id defaults to the service name")
	assert.Equal(t, "orders-svc", saramaCfg.ClientID)
	assert.Equal(t, sarama.OffsetOldest, saramaCfg.Consumer.Offsets.Initial)
	assert.False(t, saramaCfg.Net.SASL.Enable)
}

func TestConsumerConfig_ExplicitGroupID(t *testing.T) {
	cfg := ConsumerConfig{
		Brokers:       "localhost:9092",
		GroupID:       "billing",
		KafkaVersion:  "3.6.0",
		InitialOffset: "newest",
	}

	saramaCfg, err := cfg.getSaramaConfig("orders-svc")
	require.NoError(t, err)

	assert.Equal(t, "billing", saramaCfg.ClientID)
	assert.Equal(t, sarama.OffsetNewest, saramaCfg.Consumer.Offsets.Initial)
}

func TestConsumerConfig_SASL(t *testing.T) {
	cfg := ConsumerConfig{
		Brokers:       "localhost:9092",
		SaslUsername:  "user",
		SaslPassword:  "pass",
		KafkaVersion:  "3.6.0",
		InitialOffset: "newest",
	}

	saramaCfg, err := cfg.getSaramaConfig("orders-svc")
	require.NoError(t, err)

	assert.True(t, saramaCfg.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLTypePlaintext, string(saramaCfg.Net.SASL.Mechanism))
}

func TestConsumerConfig_Invalid(t *testing.T) {
	t.Run("bad kafka version", func(t *testing.T) {
		cfg := ConsumerConfig{Brokers: "b", KafkaVersion: "not-a-version", InitialOffset: "newest"}
		_, err := cfg.getSaramaConfig("svc")
		assert.Error(t, err)
	})

	t.Run("unknown initial offset", func(t *testing.T) {
		cfg := ConsumerConfig{Brokers: "b", KafkaVersion: "3.6.0", InitialOffset: "sideways"}
		_, err := cfg.getSaramaConfig("svc")
		assert.Error(t, err)
	})
}
