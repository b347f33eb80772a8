package callsync

import (
	"context"
	"time"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/chatlog"
	"github.com/nestline/callsync/internal/circuitbreak"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/database"
	"github.com/nestline/callsync/internal/feed"
	"github.com/nestline/callsync/internal/healthchecker"
	"github.com/nestline/callsync/internal/logging"
	"github.com/nestline/callsync/internal/media"
	"github.com/nestline/callsync/internal/profile"
	"github.com/nestline/callsync/internal/session"
	"github.com/nestline/callsync/internal/signal"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const remoteEndTimeout = 10 * time.Second

// Client is one user's call-coordination runtime: repositories, the change
// feed, the signaling reducer, and the media-session controller, wired
// together. The presentation layer talks to it through the intent methods in
// client.go and the observable state surface.
type Client struct {
	UserID               string
	DBConn               *gorm.DB
	Records              *callrecord.Repository
	Profiles             *profile.Repository
	Messages             *chatlog.Repository
	LogWriter            *chatlog.Writer
	Reducer              *signal.Reducer
	Sessions             *session.Controller
	FeedConsumer         *feed.Consumer
	FeedProducer         *feed.Producer
	WorkerPool           *ants.Pool
	HealthCheckerService *healthchecker.Healthchecker
}

func NewClient(ctxCancelFunc context.CancelFunc, userID string, adapter media.Adapter) (*Client, error) {
	logging.Logger.Info("[NewClient] Initializing callsync client...", zap.String("user_id", userID))

	healthcheckerService := healthchecker.NewService(ctxCancelFunc)

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewClient] Failed to initialize database", zap.Error(err))
		return nil, err
	}

	feedProducer, err := feed.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewClient] Failed to initialize feed producer", zap.Error(err))
		return nil, err
	}

	publisher := feed.NewPublisher(feedProducer)

	records := callrecord.NewRepository(dbConn, publisher)
	profiles := profile.NewRepository(dbConn)
	messages := chatlog.NewRepository(dbConn, publisher)
	logWriter := chatlog.NewWriter(messages, userID)

	sessions := session.NewController(adapter, userID)
	reducer := signal.NewReducer(userID, records, profiles, logWriter, sessions)

	sessions.SetRemoteEndHandler(func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteEndTimeout)
		defer cancel()

		_ = reducer.EndCallSession(ctx, callrecord.StatusEnded, 0)
	})

	feedConsumer, err := feed.NewConsumer(config.Conf.KafkaGroupPrefix + "-" + userID)
	if err != nil {
		logging.Logger.Error("[NewClient] Failed to initialize feed consumer", zap.Error(err))
		return nil, err
	}

	workerPool, err := ants.NewPool(config.Conf.PoolSize, ants.WithPreAlloc(true))
	if err != nil {
		logging.Logger.Error("[NewClient] Failed to create worker pool", zap.Error(err))
		return nil, err
	}

	circuitbreak.Init()

	logging.Logger.Info("[NewClient] Client initialized", zap.String("user_id", userID))

	return &Client{
		UserID:               userID,
		DBConn:               dbConn,
		Records:              records,
		Profiles:             profiles,
		Messages:             messages,
		LogWriter:            logWriter,
		Reducer:              reducer,
		Sessions:             sessions,
		FeedConsumer:         feedConsumer,
		FeedProducer:         feedProducer,
		WorkerPool:           workerPool,
		HealthCheckerService: healthcheckerService,
	}, nil
}

// Run blocks consuming the change feed until ctx is canceled.
func (client *Client) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting health checker monitor goroutine")

	go client.HealthCheckerService.Monitor()

	logging.Logger.Info("[Run] Starting change feed consumer (BLOCKING)",
		zap.String("topic", config.Conf.KafkaChangeFeedTopic),
		zap.Int("worker_pool_size", config.Conf.PoolSize),
	)

	err := client.FeedConsumer.Consume(ctx, config.Conf.KafkaChangeFeedTopic, client.MessageHandler)
	if err != nil {
		logging.Logger.Error("[Run] Change feed consumer returned error", zap.Error(err))
		return err
	}

	logging.Logger.Warn("[Run] Change feed consumer returned (context canceled or error), beginning shutdown...")

	client.shutdown()

	return nil
}

func (client *Client) shutdown() {
	err := client.FeedConsumer.Close()
	if err != nil {
		logging.Logger.Error("[Run] Failed to close feed consumer", zap.String("error", err.Error()))
	}

	logging.Logger.Info("[Run] Releasing worker pool...",
		zap.Int("running_workers", client.WorkerPool.Running()),
		zap.Int("free_workers", client.WorkerPool.Free()),
	)
	client.WorkerPool.Release()

	client.LogWriter.Close()

	err = client.FeedProducer.Close()
	if err != nil {
		logging.Logger.Error("[Run] Failed to close feed producer", zap.String("error", err.Error()))
	}

	logging.Logger.Info("[Run] ===== Client shutdown complete =====")
}
