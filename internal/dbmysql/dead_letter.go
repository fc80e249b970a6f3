package dbmysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DeadLetter is a queued event whose processing failed for good.
type DeadLetter struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	MsgID      string    `gorm:"size:64;index"`
	Subject    string    `gorm:"not null;size:255"`
	Pattern    string    `gorm:"not null;size:64;index"`
	Payload    []byte    `gorm:"type:blob"`
	Error      string    `gorm:"type:text"`
	Deliveries uint64    `gorm:"default:1"`
	Resolved   bool      `gorm:"default:false;index"`
	FailedAt   time.Time `gorm:"not null;index"`
}

type DeadLetterRepository interface {
	Record(ctx context.Context, dl *DeadLetter) error
	ListUnresolved(ctx context.Context, limit int) ([]DeadLetter, error)
	MarkResolved(ctx context.Context, id uint64) error
}

type deadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Record(ctx context.Context, dl *DeadLetter) error {
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(dl).Error; err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

func (r *deadLetterRepository) ListUnresolved(ctx context.Context, limit int) ([]DeadLetter, error) {
	var out []DeadLetter
	query := r.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("failed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return out, nil
}

func (r *deadLetterRepository) MarkResolved(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Model(&DeadLetter{}).Where("id = ?", id).Update("resolved", true)
	if res.Error != nil {
		return fmt.Errorf("failed to resolve dead letter %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
