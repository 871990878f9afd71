package domain

import "time"

// Role participant capability
type Role string

const (
	// RoleLearner learner
	RoleLearner Role = "learner"
	// RoleInstructor instructor
	RoleInstructor Role = "instructor"
)

// Participant identity resolved by the auth collaborator
type Participant struct {
	ID   string
	Role Role
}

// Profile display identity from the account directory
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        Role   `json:"role"`
}

// PresenceRecord best-effort online flag, lost on restart
type PresenceRecord struct {
	ParticipantID string    `json:"participantId"`
	Online        bool      `json:"online"`
	LastSeen      time.Time `json:"lastSeen"`
}
