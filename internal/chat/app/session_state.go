package app

import "course_messaging_service/internal/chat/domain"

// sessionState one connection's lifecycle:
// connecting -> authenticated -> idle <-> inRoom -> closed
type sessionState interface {
	name() string
}

type stateConnecting struct{}

type stateAuthenticated struct {
	participant domain.Participant
}

type stateIdle struct {
	participant domain.Participant
}

type stateInRoom struct {
	participant domain.Participant
	// room key -> peer id
	rooms map[string]string
}

type stateClosed struct{}

func (stateConnecting) name() string    { return "connecting" }
func (stateAuthenticated) name() string { return "authenticated" }
func (stateIdle) name() string          { return "idle" }
func (stateInRoom) name() string        { return "in_room" }
func (stateClosed) name() string        { return "closed" }

// participantOf ok=false before authentication and after close
func participantOf(s sessionState) (domain.Participant, bool) {
	switch st := s.(type) {
	case stateAuthenticated:
		return st.participant, true
	case stateIdle:
		return st.participant, true
	case stateInRoom:
		return st.participant, true
	}
	return domain.Participant{}, false
}

// joined room key is part of the state
func joined(s sessionState, roomKey string) bool {
	st, ok := s.(stateInRoom)
	if !ok {
		return false
	}
	_, in := st.rooms[roomKey]
	return in
}

// withRoom authenticated / idle / inRoom -> inRoom
func withRoom(s sessionState, roomKey, peerID string) sessionState {
	p, ok := participantOf(s)
	if !ok {
		return s
	}
	rooms := make(map[string]string)
	if st, in := s.(stateInRoom); in {
		for k, v := range st.rooms {
			rooms[k] = v
		}
	}
	rooms[roomKey] = peerID
	return stateInRoom{participant: p, rooms: rooms}
}

// withoutRoom inRoom -> inRoom, or idle once the last room is gone
func withoutRoom(s sessionState, roomKey string) sessionState {
	st, ok := s.(stateInRoom)
	if !ok {
		return s
	}
	rooms := make(map[string]string, len(st.rooms))
	for k, v := range st.rooms {
		if k != roomKey {
			rooms[k] = v
		}
	}
	if len(rooms) == 0 {
		return stateIdle{participant: st.participant}
	}
	return stateInRoom{participant: st.participant, rooms: rooms}
}
