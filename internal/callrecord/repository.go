package callrecord

import (
	"context"
	"errors"

	"github.com/nestline/callsync/internal/database"
	"github.com/nestline/callsync/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidAttemptResult = errors.New("invalid result type, it should be pointer to CallAttempt struct")

// FeedPublisher emits a change-feed envelope after a successful write. Publish
// failures are logged by the implementation and never fail the write itself:
// the row store is the source of truth, the feed is best-effort fan-out.
type FeedPublisher interface {
	PublishChange(op string, table string, row any)
}

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	Feed           FeedPublisher
}

func NewRepository(dbConn *gorm.DB, feed FeedPublisher) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
		Feed:           feed,
	}
}

// CreateAttempt inserts a new call attempt and publishes the insert event.
func (repository *Repository) CreateAttempt(ctx context.Context, attempt *CallAttempt) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		if ctx.Err() != nil {
			logging.Logger.Warn("[CreateAttempt] Context canceled before DB operation",
				zap.String("call_id", attempt.ID),
				zap.Error(ctx.Err()),
			)

			return nil, ctx.Err()
		}

		err := repository.DBConn.WithContext(ctx).Create(attempt).Error
		if err != nil {
			logging.Logger.Error("[CreateAttempt] Failed to create call attempt",
				zap.String("call_id", attempt.ID),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return attempt, nil
	})
	if err != nil {
		return err
	}

	if repository.Feed != nil {
		repository.Feed.PublishChange("insert", attempt.TableName(), attempt)
	}

	return nil
}

// UpdateAttempt applies a partial update to the attempt row and publishes the
// full post-update row as an update event.
func (repository *Repository) UpdateAttempt(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var attempt CallAttempt

		err := repository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&attempt).Error
		if err != nil {
			logging.Logger.Error("[UpdateAttempt] Failed to fetch call attempt",
				zap.String("call_id", id),
				zap.String("error", err.Error()),
				zap.Bool("is_record_not_found", errors.Is(err, gorm.ErrRecordNotFound)),
			)

			return nil, err
		}

		err = repository.DBConn.WithContext(ctx).
			Model(&attempt).
			Where("id = ?", id).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("[UpdateAttempt] Failed to update call attempt",
				zap.String("call_id", id),
				zap.Any("updates", updates),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		var fresh CallAttempt

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

	fresh, ok := result.(*CallAttempt)
	if !ok {
		return ErrInvalidAttemptResult
	}

	if repository.Feed != nil {
		repository.Feed.PublishChange("update", fresh.TableName(), fresh)
	}

	return nil
}

// GetAttemptByID retrieves a CallAttempt by its id.
func (repository *Repository) GetAttemptByID(ctx context.Context, id string) (*CallAttempt, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var attempt CallAttempt

		err := repository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&attempt).Error
		if err != nil {
			logging.Logger.Error("[GetAttemptByID] Failed to fetch call attempt - may cause circuit breaker trip",
				zap.String("call_id", id),
				zap.String("error", err.Error()),
				zap.Bool("is_record_not_found", errors.Is(err, gorm.ErrRecordNotFound)),
			)

			return nil, err
		}

		return &attempt, nil
	})
	if err != nil {
		return nil, err
	}

	attempt, ok := result.(*CallAttempt)
	if !ok {
		return nil, ErrInvalidAttemptResult
	}

	return attempt, nil
}

// GetAttemptByChannelName retrieves the newest attempt for a media channel.
// Legacy fallback for rows written by clients predating id-keyed lookups.
func (repository *Repository) GetAttemptByChannelName(ctx context.Context, channelName string) (*CallAttempt, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var attempt CallAttempt

		err := repository.DBConn.WithContext(ctx).
			Where("channel_name = ?", channelName).
			Order("created_at DESC").
			First(&attempt).Error
		if err != nil {
			return nil, err
		}

		return &attempt, nil
	})
	if err != nil {
		return nil, err
	}

	attempt, ok := result.(*CallAttempt)
	if !ok {
		return nil, ErrInvalidAttemptResult
	}

	return attempt, nil
}
