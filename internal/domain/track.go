package domain

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// DeviceKind mirrors the capture provider's enumeration categories.
type DeviceKind string

const (
	DeviceAudioInput DeviceKind = "audioinput"
	DeviceVideoInput DeviceKind = "videoinput"
)

// TrackKind maps a device category to the kind of track it captures.
func (k DeviceKind) TrackKind() TrackKind {
	if k == DeviceVideoInput {
		return TrackVideo
	}
	return TrackAudio
}

// Device describes one capture input.
type Device struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}
