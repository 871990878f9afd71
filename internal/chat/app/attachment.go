package app

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/config"
	"course_messaging_service/pkg/database"
	"course_messaging_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadPresigner object store that can issue browser upload policies
type UploadPresigner interface {
	PresignPostPolicy(ctx context.Context, req database.PostPolicyRequest) (string, map[string]string, error)
}

// AttachmentCoordinator 發放上傳位置, 檔案本身不經過 chat service
type AttachmentCoordinator struct {
	cfg       config.AttachmentConfig
	presigner UploadPresigner
	ledger    repository.AttachmentSlotRepo
	now       func() time.Time
}

// NewAttachmentCoordinator ledger may be nil, then no hourly quota is enforced
func NewAttachmentCoordinator(cfg config.AttachmentConfig, presigner UploadPresigner, ledger repository.AttachmentSlotRepo) *AttachmentCoordinator {
	return &AttachmentCoordinator{
		cfg:       cfg.WithDefaults(),
		presigner: presigner,
		ledger:    ledger,
		now:       time.Now,
	}
}

// MaxBytes size limit of a kind, 0 for unknown kinds
func (a *AttachmentCoordinator) MaxBytes(kind domain.AttachmentKind) int64 {
	switch kind {
	case domain.KindImage:
		return a.cfg.MaxImageBytes
	case domain.KindVideo:
		return a.cfg.MaxVideoBytes
	case domain.KindAudio:
		return a.cfg.MaxAudioBytes
	}
	return 0
}

// RequestUploadSlot validate the declared upload and issue a presigned POST target
func (a *AttachmentCoordinator) RequestUploadSlot(ctx context.Context, participantID string, req domain.SlotRequest) (domain.UploadSlot, error) {
	if err := domain.ValidateParticipantID(participantID); err != nil {
		return domain.UploadSlot{}, err
	}
	if !req.Kind.Valid() {
		return domain.UploadSlot{}, domain.Validation("attachment kind must be image, video or audio")
	}
	if req.SizeBytes <= 0 {
		return domain.UploadSlot{}, domain.Validation("sizeBytes must be positive")
	}
	limit := a.MaxBytes(req.Kind)
	if req.SizeBytes > limit {
		return domain.UploadSlot{}, domain.Validation(fmt.Sprintf("%s exceeds the maximum size of %d bytes", req.Kind, limit))
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !strings.HasPrefix(contentType, string(req.Kind)+"/") {
		return domain.UploadSlot{}, domain.Validation("contentType does not match attachment kind")
	}

	now := a.now().UTC()
	if a.ledger != nil {
		n, err := a.ledger.CountIssuedSince(ctx, participantID, now.Add(-time.Hour))
		if err != nil {
			return domain.UploadSlot{}, domain.Persistence(err)
		}
		if n >= int64(a.cfg.MaxSlotsPerHour) {
			return domain.UploadSlot{}, domain.Validation("upload slot quota exceeded, try again later")
		}
	}

	slotID := uuid.NewString()
	objectKey := path.Join("attachments", string(req.Kind), url.PathEscape(participantID), slotID+fileExt(req.FileName))
	expiresAt := now.Add(a.cfg.SlotTTL)

	uploadURL, formData, err := a.presigner.PresignPostPolicy(ctx, database.PostPolicyRequest{
		ObjectKey:   objectKey,
		ContentType: contentType,
		MinBytes:    1,
		MaxBytes:    req.SizeBytes,
		Expires:     expiresAt,
	})
	if err != nil {
		logger.Log.Error("presign upload slot failed", zap.String("participant_id", participantID), zap.Error(err))
		return domain.UploadSlot{}, &domain.ChatError{Code: domain.CodePersistence, Message: "object store unavailable", Err: err}
	}

	if a.ledger != nil {
		err := a.ledger.Create(ctx, &domain.AttachmentSlot{
			ID:            slotID,
			ParticipantID: participantID,
			Kind:          req.Kind,
			ObjectKey:     objectKey,
			SizeBytes:     req.SizeBytes,
			ContentType:   contentType,
			IssuedAt:      now,
			ExpiresAt:     expiresAt,
		})
		if err != nil {
			return domain.UploadSlot{}, domain.Persistence(err)
		}
	}

	base := a.cfg.PublicBaseURL
	if base == "" {
		base = uploadURL
	}

	return domain.UploadSlot{
		SlotID:    slotID,
		Method:    "POST",
		UploadURL: uploadURL,
		FormData:  formData,
		ObjectKey: objectKey,
		PublicURL: strings.TrimRight(base, "/") + "/" + objectKey,
		MaxBytes:  req.SizeBytes,
		ExpiresAt: expiresAt,
	}, nil
}

// fileExt 只保留簡單的副檔名, 其他字元一律丟掉
func fileExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
