package repository

import (
	"context"
	"time"

	"course_messaging_service/internal/chat/domain"

	"gorm.io/gorm"
)

// AttachmentSlotRepo ledger of issued upload slots
type AttachmentSlotRepo interface {
	AutoMigrate() error
	Create(ctx context.Context, slot *domain.AttachmentSlot) error
	CountIssuedSince(ctx context.Context, participantID string, since time.Time) (int64, error)
}

type attachmentSlotRepo struct {
	db *gorm.DB
}

// NewAttachmentSlotRepo create AttachmentSlotRepo
func NewAttachmentSlotRepo(db *gorm.DB) AttachmentSlotRepo {
	return &attachmentSlotRepo{db: db}
}

// AutoMigrate 開發環境建表用, 正式環境的 schema 變更另外處理
func (r *attachmentSlotRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.AttachmentSlot{})
}

func (r *attachmentSlotRepo) Create(ctx context.Context, slot *domain.AttachmentSlot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *attachmentSlotRepo) CountIssuedSince(ctx context.Context, participantID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.AttachmentSlot{}).
		Where("participant_id = ? AND issued_at >= ?", participantID, since).
		Count(&n).Error
	return n, err
}
