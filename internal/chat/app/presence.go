package app

import (
	"context"
	"sync"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/logger"

	"go.uber.org/zap"
)

const mirrorTimeout = 2 * time.Second

// PresenceTracker 以連線數計算上線狀態, 同一人多條連線時最後一條斷線才算離線
type PresenceTracker struct {
	mu       sync.RWMutex
	conns    map[string]map[string]struct{} // participant -> connection ids
	owner    map[string]string              // connection -> participant
	lastSeen map[string]time.Time

	mirror repository.PresenceMirror
	now    func() time.Time
}

// NewPresenceTracker mirror may be nil for a single instance deployment
func NewPresenceTracker(mirror repository.PresenceMirror) *PresenceTracker {
	return &PresenceTracker{
		conns:    make(map[string]map[string]struct{}),
		owner:    make(map[string]string),
		lastSeen: make(map[string]time.Time),
		mirror:   mirror,
		now:      time.Now,
	}
}

// SetOnline idempotent per connection; transitioned is true on the first connection of the participant
func (p *PresenceTracker) SetOnline(participantID, connectionID string) (domain.PresenceRecord, bool) {
	p.mu.Lock()
	if _, ok := p.owner[connectionID]; ok {
		rec := p.snapshotLocked(participantID)
		p.mu.Unlock()
		return rec, false
	}

	set, ok := p.conns[participantID]
	if !ok {
		set = make(map[string]struct{})
		p.conns[participantID] = set
	}
	set[connectionID] = struct{}{}
	p.owner[connectionID] = participantID
	transitioned := len(set) == 1
	if transitioned {
		p.lastSeen[participantID] = p.now().UTC()
	}
	rec := p.snapshotLocked(participantID)
	p.mu.Unlock()

	if transitioned && p.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := p.mirror.MarkOnline(ctx, participantID); err != nil {
			logger.Log.Warn("presence mirror online failed", zap.String("participant_id", participantID), zap.Error(err))
		}
	}
	return rec, transitioned
}

// SetOffline idempotent; transitioned is true when the last connection of the participant goes away
func (p *PresenceTracker) SetOffline(connectionID string) (domain.PresenceRecord, bool) {
	p.mu.Lock()
	participantID, ok := p.owner[connectionID]
	if !ok {
		p.mu.Unlock()
		return domain.PresenceRecord{}, false
	}
	delete(p.owner, connectionID)

	set := p.conns[participantID]
	delete(set, connectionID)
	transitioned := len(set) == 0
	if transitioned {
		delete(p.conns, participantID)
		p.lastSeen[participantID] = p.now().UTC()
	}
	rec := p.snapshotLocked(participantID)
	p.mu.Unlock()

	if transitioned && p.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := p.mirror.MarkOffline(ctx, participantID, rec.LastSeen); err != nil {
			logger.Log.Warn("presence mirror offline failed", zap.String("participant_id", participantID), zap.Error(err))
		}
	}
	return rec, transitioned
}

// IsOnline local connections first, then the cluster mirror
func (p *PresenceTracker) IsOnline(participantID string) bool {
	p.mu.RLock()
	local := len(p.conns[participantID]) > 0
	p.mu.RUnlock()
	if local || p.mirror == nil {
		return local
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	online, err := p.mirror.IsOnline(ctx, participantID)
	if err != nil {
		logger.Log.Warn("presence mirror lookup failed", zap.String("participant_id", participantID), zap.Error(err))
		return false
	}
	return online
}

// Snapshot online flag and last seen, unknown participants are offline with zero last seen
func (p *PresenceTracker) Snapshot(participantID string) domain.PresenceRecord {
	p.mu.RLock()
	rec := p.snapshotLocked(participantID)
	p.mu.RUnlock()

	if rec.Online || p.mirror == nil {
		return rec
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if online, err := p.mirror.IsOnline(ctx, participantID); err == nil && online {
		rec.Online = true
	}
	if ts, err := p.mirror.LastSeen(ctx, participantID); err == nil && ts.After(rec.LastSeen) {
		rec.LastSeen = ts
	}
	return rec
}

func (p *PresenceTracker) snapshotLocked(participantID string) domain.PresenceRecord {
	return domain.PresenceRecord{
		ParticipantID: participantID,
		Online:        len(p.conns[participantID]) > 0,
		LastSeen:      p.lastSeen[participantID],
	}
}
