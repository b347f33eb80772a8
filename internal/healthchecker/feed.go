package healthchecker

import (
	"github.com/google/uuid"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/feed"
	"github.com/nestline/callsync/internal/logging"
	"go.uber.org/zap"
)

var healthcheckerMsg = "healthchecker msg"

// CheckFeedProducer probes the broker on a dedicated topic so probe traffic
// never reaches the change-feed consumers.
func CheckFeedProducer() error {
	producer, err := feed.NewProducer()
	if err != nil {
		logging.Logger.Error("failed to create new feed producer client", zap.String("error", err.Error()))
		return err
	}

	defer func() {
		_ = producer.Close()
	}()

	_, _, err = producer.SendMessage(
		config.Conf.KafkaHealthCheckTopic,
		[]byte(uuid.New().String()),
		[]byte(healthcheckerMsg),
	)

	return err
}
