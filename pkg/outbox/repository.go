package outbox

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-inventory/pkg/db/models"
)

// Error columns are bounded so a verbose broker error cannot bloat a row.
const (
	maxLastErrorLen = 1024
	maxDLQErrorLen  = 1024
)

// ErrTxRequired is returned by every write that must join the caller's
// transaction.
var ErrTxRequired = errors.New("outbox: transaction required")

// Repository reads and settles outbox_events rows. Every method takes the
// caller's transaction so claiming and settling share the row locks.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	return tx.Create(&event).Error
}

// ClaimPending locks up to limit unpublished rows in creation order. Rows
// held by a concurrent publisher are skipped, and rows at maxAttempts or
// beyond are parked.
func (r *Repository) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	query := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return updateRow(tx, id, map[string]any{"published_at": time.Now().UTC()})
}

// MarkFailed records a retryable failure and bumps the attempt count.
func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error {
	return updateRow(tx, id, map[string]any{
		"last_error":    errorText(cause, maxLastErrorLen),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminal parks a row by raising its attempt count to the fetch ceiling.
// The DLQ entry written alongside keeps the details.
func (r *Repository) MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return updateRow(tx, id, map[string]any{
		"last_error":    errorText(cause, maxLastErrorLen),
		"attempt_count": ceiling,
	})
}

// DeletePublishedBefore removes up to limit published rows older than cutoff,
// oldest first, and returns how many went. limit <= 0 removes all of them.
func (r *Repository) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		return 0, ErrTxRequired
	}
	expired := tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.OutboxEvent{}).
		Select("id").
		Where("published_at IS NOT NULL AND published_at < ?", cutoff)
	if limit > 0 {
		expired = expired.Order("published_at").Limit(limit)
	}
	res := tx.Where("id IN (?)", expired).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func updateRow(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return ErrTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func errorText(err error, limit int) string {
	if err == nil {
		return ""
	}
	return truncate(err.Error(), limit)
}

// truncate cuts msg to at most limit bytes without splitting a rune.
func truncate(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
