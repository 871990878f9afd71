package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/config"
	"course_messaging_service/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var slotNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(cfg config.AttachmentConfig, presigner UploadPresigner, ledger *MockAttachmentSlotRepo) *AttachmentCoordinator {
	var a *AttachmentCoordinator
	if ledger == nil {
		a = NewAttachmentCoordinator(cfg, presigner, nil)
	} else {
		a = NewAttachmentCoordinator(cfg, presigner, ledger)
	}
	a.now = func() time.Time { return slotNow }
	return a
}

func TestAttachmentCoordinator_IssuesSlot(t *testing.T) {
	presigner := new(MockPresigner)
	ledger := new(MockAttachmentSlotRepo)
	form := map[string]string{"policy": "p", "x-amz-signature": "s"}

	ledger.On("CountIssuedSince", mock.Anything, "learner-1", slotNow.Add(-time.Hour)).Return(int64(3), nil)
	presigner.On("PresignPostPolicy", mock.Anything, mock.MatchedBy(func(req database.PostPolicyRequest) bool {
		return strings.HasPrefix(req.ObjectKey, "attachments/image/learner-1/") &&
			strings.HasSuffix(req.ObjectKey, ".png") &&
			req.ContentType == "image/png" &&
			req.MinBytes == 1 && req.MaxBytes == 2048 &&
			req.Expires.Equal(slotNow.Add(15*time.Minute))
	})).Return("http://minio:9000/chat-attachments", form, nil)
	ledger.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.AttachmentSlot) bool {
		return s.ParticipantID == "learner-1" && s.Kind == domain.KindImage && s.SizeBytes == 2048
	})).Return(nil)

	a := newTestCoordinator(config.AttachmentConfig{PublicBaseURL: "https://cdn.example.com/"}, presigner, ledger)
	slot, err := a.RequestUploadSlot(context.Background(), "learner-1", domain.SlotRequest{
		Kind:        domain.KindImage,
		SizeBytes:   2048,
		ContentType: "Image/PNG",
		FileName:    "diagram.PNG",
	})
	require.NoError(t, err)

	assert.Equal(t, "POST", slot.Method)
	assert.Equal(t, "http://minio:9000/chat-attachments", slot.UploadURL)
	assert.Equal(t, form, slot.FormData)
	assert.Equal(t, int64(2048), slot.MaxBytes)
	assert.Equal(t, "https://cdn.example.com/"+slot.ObjectKey, slot.PublicURL)
	assert.Equal(t, slotNow.Add(15*time.Minute), slot.ExpiresAt)
	assert.NotEmpty(t, slot.SlotID)
	presigner.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestAttachmentCoordinator_PublicURLFallsBackToUploadURL(t *testing.T) {
	presigner := new(MockPresigner)
	presigner.On("PresignPostPolicy", mock.Anything, mock.Anything).Return("http://minio:9000/bucket/", map[string]string{}, nil)

	a := newTestCoordinator(config.AttachmentConfig{}, presigner, nil)
	slot, err := a.RequestUploadSlot(context.Background(), "inst-1", domain.SlotRequest{
		Kind: domain.KindAudio, SizeBytes: 10, ContentType: "audio/mpeg", FileName: "note.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/bucket/"+slot.ObjectKey, slot.PublicURL)
}

func TestAttachmentCoordinator_RejectsBadRequests(t *testing.T) {
	a := newTestCoordinator(config.AttachmentConfig{MaxImageBytes: 1000}, new(MockPresigner), nil)

	cases := []struct {
		name string
		pid  string
		req  domain.SlotRequest
	}{
		{"bad participant", "", domain.SlotRequest{Kind: domain.KindImage, SizeBytes: 10, ContentType: "image/png"}},
		{"unknown kind", "p", domain.SlotRequest{Kind: "pdf", SizeBytes: 10, ContentType: "application/pdf"}},
		{"zero size", "p", domain.SlotRequest{Kind: domain.KindImage, SizeBytes: 0, ContentType: "image/png"}},
		{"too large", "p", domain.SlotRequest{Kind: domain.KindImage, SizeBytes: 1001, ContentType: "image/png"}},
		{"content type mismatch", "p", domain.SlotRequest{Kind: domain.KindImage, SizeBytes: 10, ContentType: "video/mp4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.RequestUploadSlot(context.Background(), tc.pid, tc.req)
			require.Error(t, err)
			assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
		})
	}
}

func TestAttachmentCoordinator_QuotaExceeded(t *testing.T) {
	presigner := new(MockPresigner)
	ledger := new(MockAttachmentSlotRepo)
	ledger.On("CountIssuedSince", mock.Anything, "p", mock.Anything).Return(int64(2), nil)

	a := newTestCoordinator(config.AttachmentConfig{MaxSlotsPerHour: 2}, presigner, ledger)
	_, err := a.RequestUploadSlot(context.Background(), "p", domain.SlotRequest{
		Kind: domain.KindVideo, SizeBytes: 10, ContentType: "video/mp4",
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	presigner.AssertNotCalled(t, "PresignPostPolicy", mock.Anything, mock.Anything)
}

func TestAttachmentCoordinator_ObjectStoreDown(t *testing.T) {
	presigner := new(MockPresigner)
	ledger := new(MockAttachmentSlotRepo)
	ledger.On("CountIssuedSince", mock.Anything, "p", mock.Anything).Return(int64(0), nil)
	presigner.On("PresignPostPolicy", mock.Anything, mock.Anything).Return("", nil, errors.New("dial tcp: refused"))

	a := newTestCoordinator(config.AttachmentConfig{}, presigner, ledger)
	_, err := a.RequestUploadSlot(context.Background(), "p", domain.SlotRequest{
		Kind: domain.KindImage, SizeBytes: 10, ContentType: "image/jpeg",
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodePersistence, domain.CodeOf(err))
	assert.Equal(t, "object store unavailable", domain.MessageOf(err))
	ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFileExt(t *testing.T) {
	assert.Equal(t, ".png", fileExt("a.PNG"))
	assert.Equal(t, ".mp4", fileExt("clip.final.mp4"))
	assert.Equal(t, "", fileExt("noext"))
	assert.Equal(t, "", fileExt("evil.p/ng"))
	assert.Equal(t, "", fileExt("x.verylongextension"))
}
