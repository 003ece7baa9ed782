package storage

import (
	"context"
	"errors"

	"smsinbox/internal/constants"
	"smsinbox/pkg/models"
)

//go:generate mockgen -source=store.go -destination=mock/store_mock.go -package=mock

var (
	// ErrConflict reports that a message with the same id is already stored
	// or that the insert was rejected by a uniqueness constraint.
	ErrConflict = errors.New("message already exists")
	ErrNotFound = errors.New("message not found")
)

// Store is the message repository. Implementations enforce message_id
// uniqueness themselves; callers must not rely on a read-before-write.
type Store interface {
	// Insert stores msg. It returns ErrConflict (possibly wrapping a driver
	// error) when nothing was written because of the message_id constraint.
	Insert(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, messageID string) (*models.Message, error)
	// Query returns one page ordered by ts then message_id, plus the number
	// of messages matching filter regardless of page.
	Query(ctx context.Context, filter models.Filter, page models.Pagination) ([]models.Message, int64, error)
	// Aggregate computes corpus-wide stats with at most topN senders.
	Aggregate(ctx context.Context, topN int) (*models.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Backend names, also used as the "backend" metrics label.
const (
	BackendPostgres = constants.BackendPostgres
	BackendSQLite   = constants.BackendSQLite
	BackendMongo    = constants.BackendMongoDB
	BackendMemory   = constants.BackendMemory
)

// IsDomainError reports errors that describe the data rather than a
// failing backend.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}
