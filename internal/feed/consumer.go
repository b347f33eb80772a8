package feed

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/nestline/callsync/internal/logging"
	"go.uber.org/zap"
)

type Consumer struct {
	Client  sarama.ConsumerGroup
	GroupID string
}

// NewConsumer creates a change-feed consumer for one client. groupID must be
// unique per client (group prefix + user id) so consumption is a broadcast,
// not a work queue.
func NewConsumer(groupID string) (*Consumer, error) {
	client, err := createConsumerGroup(groupID)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		Client:  client,
		GroupID: groupID,
	}, nil
}

// Consume starts consuming change events from topic. Delivery is
// at-least-once: events may be duplicated and arrive in any order relative to
// local writes. Callers must be idempotent.
func (c *Consumer) Consume(
	ctx context.Context,
	topic string,
	messageHandler func(context.Context, *sarama.ConsumerMessage),
) error {
	handler := &consumerGroupHandler{
		messageHandler: messageHandler,
	}

	runConsumerLoop(ctx, c.Client, topic, handler, c.GroupID)

	return nil
}

func (c *Consumer) Close() error {
	err := c.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close change feed consumer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("Change feed consumer closed successfully")

	return nil
}

type consumerGroupHandler struct {
	messageHandler func(context.Context, *sarama.ConsumerMessage)
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			h.messageHandler(session.Context(), message)

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
