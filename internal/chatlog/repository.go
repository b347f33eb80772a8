package chatlog

import (
	"context"
	"errors"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/database"
	"github.com/nestline/callsync/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidLogEntryResult = errors.New("invalid result type, it should be pointer to LogEntry struct")
	ErrLogEntryNotFound      = errors.New("call log entry not found")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	Feed           callrecord.FeedPublisher
}

func NewRepository(dbConn *gorm.DB, feed callrecord.FeedPublisher) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
		Feed:           feed,
	}
}

// InsertMessage inserts a message row and publishes the insert event.
func (repository *Repository) InsertMessage(ctx context.Context, entry *LogEntry) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		err := repository.DBConn.WithContext(ctx).Create(entry).Error
		if err != nil {
			logging.Logger.Error("[InsertMessage] Failed to insert message",
				zap.String("message_id", entry.ID),
				zap.String("message_type", entry.MessageType),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return entry, nil
	})
	if err != nil {
		return err
	}

	if repository.Feed != nil {
		repository.Feed.PublishChange("insert", entry.TableName(), entry)
	}

	return nil
}

// UpdateMessage applies a partial update to a message row.
func (repository *Repository) UpdateMessage(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		err := repository.DBConn.WithContext(ctx).
			Model(&LogEntry{}).
			Where("id = ?", id).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("[UpdateMessage] Failed to update message",
				zap.String("message_id", id),
				zap.Any("updates", updates),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		var fresh LogEntry

		err = repository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&fresh).Error
		if err != nil {
			return nil, err
		}

		return &fresh, nil
	})
	if err != nil {
		return err
	}

	fresh, ok := result.(*LogEntry)
	if !ok {
		return ErrInvalidLogEntryResult
	}

	if repository.Feed != nil {
		repository.Feed.PublishChange("update", fresh.TableName(), fresh)
	}

	return nil
}

// FindCallLog retrieves the call_log entry for a call attempt.
// Returns ErrLogEntryNotFound if no entry exists yet.
func (repository *Repository) FindCallLog(ctx context.Context, callID string) (*LogEntry, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var entry LogEntry

		err := repository.DBConn.WithContext(ctx).
			Where("message_type = ? AND call_id = ?", MessageTypeCallLog, callID).
			First(&entry).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogEntryNotFound
		}

		if err != nil {
			return nil, err
		}

		return &entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry, ok := result.(*LogEntry)
	if !ok {
		return nil, ErrInvalidLogEntryResult
	}

	return entry, nil
}
