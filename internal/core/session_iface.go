package core

import (
	"context"

	"github.com/dkeye/callview/internal/domain"
)

// Credentials authorize a connect against the session provider.
type Credentials struct {
	URL   string
	Token string
}

type ConnectOptions struct {
	Room        domain.RoomName
	DisplayName string
}

// SessionProvider establishes live call sessions.
// Connect either returns a fully usable Session or an error; no partial state.
type SessionProvider interface {
	Connect(ctx context.Context, creds Credentials, opts ConnectOptions) (Session, error)
}

// Session is the provider-side view of one live call.
// Event callbacks are dispatched one at a time; handlers never run concurrently.
type Session interface {
	Room() domain.Room
	Local() Participant
	// DominantSpeaker reports the loudest remote participant, if the provider
	// has announced one.
	DominantSpeaker() (Participant, bool)
	// Participants returns the currently connected remote participants.
	Participants() []Participant

	PublishTrack(t LocalTrack) error
	UnpublishTrack(t LocalTrack)

	OnParticipantConnected(fn func(Participant)) Unsubscribe
	OnParticipantDisconnected(fn func(Participant)) Unsubscribe
	OnDominantSpeakerChanged(fn func(Participant)) Unsubscribe
	OnDisconnected(fn func()) Unsubscribe

	// Close leaves the session. Safe to call more than once.
	Close()
}
