package domain

import "time"

// SlotRequest client asks for an upload target before sending an attachment
type SlotRequest struct {
	Kind        AttachmentKind `json:"kind"`
	SizeBytes   int64          `json:"sizeBytes"`
	ContentType string         `json:"contentType"`
	FileName    string         `json:"fileName"`
}

// UploadSlot presigned upload target on the object store
type UploadSlot struct {
	SlotID    string            `json:"slotId"`
	Method    string            `json:"method"`
	UploadURL string            `json:"uploadUrl"`
	FormData  map[string]string `json:"formData"`
	ObjectKey string            `json:"objectKey"`
	PublicURL string            `json:"publicUrl"`
	MaxBytes  int64             `json:"maxBytes"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// AttachmentSlot ledger row for every issued slot
type AttachmentSlot struct {
	ID            string         `gorm:"primaryKey;size:36"`
	ParticipantID string         `gorm:"index:idx_slot_participant_issued,priority:1;size:128;not null"`
	Kind          AttachmentKind `gorm:"size:16;not null"`
	ObjectKey     string         `gorm:"size:512;not null;uniqueIndex"`
	SizeBytes     int64          `gorm:"not null"`
	ContentType   string         `gorm:"size:128"`
	IssuedAt      time.Time      `gorm:"index:idx_slot_participant_issued,priority:2;not null"`
	ExpiresAt     time.Time      `gorm:"not null"`
}
