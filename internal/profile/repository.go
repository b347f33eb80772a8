package profile

import (
	"context"
	"errors"

	"github.com/nestline/callsync/internal/database"
	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"
)

var (
	ErrInvalidProfileResult = errors.New("invalid result type, it should be pointer to Profile struct")
	ErrInvalidMuteResult    = errors.New("invalid result type, it should be pointer to ChatMute struct")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// GetProfileByID retrieves a Profile by its user id.
func (repository *Repository) GetProfileByID(ctx context.Context, userID string) (*Profile, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var prof Profile

		err := repository.DBConn.WithContext(ctx).
			Where("user_id = ?", userID).
			First(&prof).Error
		if err != nil {
			return nil, err
		}

		return &prof, nil
	})
	if err != nil {
		return nil, err
	}

	prof, ok := result.(*Profile)
	if !ok {
		return nil, ErrInvalidProfileResult
	}

	return prof, nil
}

// GetMute retrieves the mute row ownerID holds against peerID.
// Returns (nil, nil) when no mute exists.
func (repository *Repository) GetMute(ctx context.Context, ownerID, peerID string) (*ChatMute, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var mute ChatMute

		err := repository.DBConn.WithContext(ctx).
			Where("owner_id = ? AND peer_id = ?", ownerID, peerID).
			First(&mute).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return (*ChatMute)(nil), nil
		}

		if err != nil {
			return nil, err
		}

		return &mute, nil
	})
	if err != nil {
		return nil, err
	}

	mute, ok := result.(*ChatMute)
	if !ok {
		return nil, ErrInvalidMuteResult
	}

	return mute, nil
}
