package feed

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/logging"
	"go.uber.org/zap"
)

// Publisher adapts Producer to the repositories' write-through publish hook.
// All failures are logged and swallowed: a change event that never fans out
// degrades to the same state as a delayed feed, which every consumer already
// tolerates.
type Publisher struct {
	Producer *Producer
	Topic    string
}

func NewPublisher(producer *Producer) *Publisher {
	return &Publisher{
		Producer: producer,
		Topic:    config.Conf.KafkaChangeFeedTopic,
	}
}

func (p *Publisher) PublishChange(op string, table string, row any) {
	env := Envelope{
		Op:        op,
		Table:     table,
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	}

	rowBytes, err := json.Marshal(row)
	if err != nil {
		logging.Logger.Error("failed to marshal change row",
			zap.String("table", table),
			zap.String("op", op),
			zap.String("error", err.Error()),
		)

		return
	}

	env.Row = rowBytes

	envBytes, err := json.Marshal(&env)
	if err != nil {
		logging.Logger.Error("failed to marshal change envelope",
			zap.String("table", table),
			zap.String("error", err.Error()),
		)

		return
	}

	_, _, err = p.Producer.SendMessage(p.Topic, nil, envBytes)
	if err != nil {
		logging.Logger.Error("failed to publish change event",
			zap.String("table", table),
			zap.String("op", op),
			zap.String("error", err.Error()),
		)
	}
}
