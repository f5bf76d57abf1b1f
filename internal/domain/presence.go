package domain

type PresenceType string

const (
	PresenceOnline  PresenceType = "online"
	PresenceOffline PresenceType = "offline"
)

// PresenceEvent is pushed to a user's accepted contacts when that user
// attaches or detaches.
type PresenceEvent struct {
	Type   PresenceType `json:"type"`
	UserID UserID       `json:"userId"`
}

func NewPresenceEvent(uid UserID, online bool) PresenceEvent {
	t := PresenceOffline
	if online {
		t = PresenceOnline
	}
	return PresenceEvent{Type: t, UserID: uid}
}

func (e PresenceEvent) Online() bool { return e.Type == PresenceOnline }
