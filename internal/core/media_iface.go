package core

import "github.com/dkeye/callview/internal/domain"

// Participant is a local or remote party in the session.
type Participant interface {
	Identity() domain.Identity
	Role() domain.Role
	// Publications returns the tracks this participant currently announces,
	// subscribed or not.
	Publications() []Publication
	OnTrackPublished(fn func(Publication)) Unsubscribe
}

// Publication is a participant's announcement of an available track.
// It carries a Track only while subscribed.
type Publication interface {
	SID() string
	Kind() domain.TrackKind
	Track() (Track, bool)
	OnSubscribed(fn func(Track)) Unsubscribe
	OnUnsubscribed(fn func(Track)) Unsubscribe
}

// Track is a single subscribed media stream.
type Track interface {
	ID() string
	Kind() domain.TrackKind
	// Enabled/disabled is remote-controlled and only meaningful for video.
	OnEnabled(fn func()) Unsubscribe
	OnDisabled(fn func()) Unsubscribe
}

// LocalTrack is a capture-owned track. Stop releases the device; SetEnabled
// pauses/resumes without releasing it.
type LocalTrack interface {
	Track
	SetEnabled(enabled bool)
	Stop()
}

// CaptureProvider wraps local device capture.
type CaptureProvider interface {
	EnumerateDevices(kind domain.DeviceKind) []domain.Device
	// CreateTrack opens the device and starts capturing. Empty deviceID means
	// the platform default for that kind.
	CreateTrack(deviceID string, kind domain.TrackKind) (LocalTrack, error)
}
