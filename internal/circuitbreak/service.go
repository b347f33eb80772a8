package circuitbreak

import "github.com/nestline/callsync/internal/logging"

var CircuitBreakChan chan string

const (
	DBService           = "database"
	FeedProducerService = "feed_producer"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("callsync app is not created")
	}

	CircuitBreakChan <- service
}
