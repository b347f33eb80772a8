package feed

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/logging"
	"go.uber.org/zap"
)

// newSaramaConfig creates a new Sarama configuration. SASL SCRAM-SHA512 is
// enabled only when credentials are configured, so a local broker without auth
// still works.
func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_8_0_0

	applySASL(cfg)

	cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.ResetInvalidOffsets = true
	cfg.Consumer.Return.Errors = true

	return cfg
}

func applySASL(cfg *sarama.Config) {
	if config.Conf.KafkaUsername == "" {
		return
	}

	cfg.Net.SASL.Enable = true
	cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
	cfg.Net.SASL.User = config.Conf.KafkaUsername
	cfg.Net.SASL.Password = config.Conf.KafkaPassword
	cfg.Net.SASL.Handshake = true

	cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
		return &XDGSCRAMClient{}
	}
}

// createConsumerGroup creates a new consumer group with the given group ID.
// Each client uses its own group id so every client observes the full feed.
func createConsumerGroup(groupID string) (sarama.ConsumerGroup, error) {
	cfg := newSaramaConfig()

	client, err := sarama.NewConsumerGroup(
		[]string{config.Conf.KafkaBootstrapServer},
		groupID,
		cfg,
	)
	if err != nil {
		logging.Logger.Error("Failed to create change feed consumer group",
			zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
			zap.String("group_id", groupID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to change feed",
		zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
		zap.String("group_id", groupID),
	)

	return client, nil
}

// runConsumerLoop runs the consumer group loop with the given handler.
func runConsumerLoop(
	ctx context.Context,
	client sarama.ConsumerGroup,
	topic string,
	handler *consumerGroupHandler,
	groupID string,
) {
	var waitGroup sync.WaitGroup

	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()

		topics := []string{topic}

		for {
			err := client.Consume(ctx, topics, handler)
			if err != nil {
				logging.Logger.Error("Change feed consume error",
					zap.String("group_id", groupID),
					zap.String("error", err.Error()),
				)
			}

			if ctx.Err() != nil {
				logging.Logger.Info("Change feed consumer stopping (context canceled)",
					zap.String("group_id", groupID),
					zap.String("error", ctx.Err().Error()),
				)

				return
			}
		}
	}()

	go func() {
		for err := range client.Errors() {
			logging.Logger.Error("Change feed consumer internal error",
				zap.String("group_id", groupID),
				zap.String("error", err.Error()),
			)
		}
	}()

	waitGroup.Wait()
}
