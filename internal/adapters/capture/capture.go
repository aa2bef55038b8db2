// Package capture implements core.CaptureProvider over pion/mediadevices.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

var ErrNoTrack = errors.New("capture produced no track")

type Provider struct {
	codecs *mediadevices.CodecSelector
}

func New() (*Provider, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	return &Provider{
		codecs: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// SetupEngine registers the selector's encoders with a peer connection's
// media engine, so published tracks negotiate the codecs they actually encode.
func (p *Provider) SetupEngine(engine *webrtc.MediaEngine) error {
	p.codecs.Populate(engine)
	return nil
}

func (p *Provider) EnumerateDevices(kind domain.DeviceKind) []domain.Device {
	var out []domain.Device
	for _, d := range mediadevices.EnumerateDevices() {
		var dk domain.DeviceKind
		switch d.Kind {
		case mediadevices.VideoInput:
			dk = domain.DeviceVideoInput
		case mediadevices.AudioInput:
			dk = domain.DeviceAudioInput
		default:
			continue
		}
		if dk != kind {
			continue
		}
		out = append(out, domain.Device{ID: d.DeviceID, Label: d.Label, Kind: dk})
	}
	return out
}

// CreateTrack opens the device and starts capturing. Raw frame formats only
// for video: some cameras expose an MJPEG node that produces malformed JPEG
// frames, which poisons the VP8 encoder.
func (p *Provider) CreateTrack(deviceID string, kind domain.TrackKind) (core.LocalTrack, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: p.codecs}
	switch kind {
	case domain.TrackVideo:
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	case domain.TrackAudio:
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported track kind %q", kind)
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	var tracks []mediadevices.Track
	if kind == domain.TrackVideo {
		tracks = stream.GetVideoTracks()
	} else {
		tracks = stream.GetAudioTracks()
	}
	if len(tracks) == 0 {
		for _, t := range stream.GetTracks() {
			_ = t.Close()
		}
		return nil, ErrNoTrack
	}
	t := tracks[0]
	t.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "capture").Str("track_id", t.ID()).Msg("local track ended")
		}
	})

	log.Info().Str("module", "capture").Str("device", deviceID).Str("kind", string(kind)).Str("track_id", t.ID()).Msg("capture started")
	return &localTrack{track: t, kind: kind, enabledState: true}, nil
}

// localTrack adapts a mediadevices track to core.LocalTrack.
type localTrack struct {
	track mediadevices.Track
	kind  domain.TrackKind

	mu           sync.Mutex
	enabledState bool
	stopped      bool

	enabled  core.Event[struct{}]
	disabled core.Event[struct{}]
}

func (t *localTrack) ID() string             { return t.track.ID() }
func (t *localTrack) Kind() domain.TrackKind { return t.kind }

func (t *localTrack) OnEnabled(fn func()) core.Unsubscribe {
	return t.enabled.Subscribe(func(struct{}) { fn() })
}

func (t *localTrack) OnDisabled(fn func()) core.Unsubscribe {
	return t.disabled.Subscribe(func(struct{}) { fn() })
}

// SetEnabled pauses/resumes the surfaces bound to this track. mediadevices
// has no pause primitive; the device keeps running until Stop.
func (t *localTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	if t.enabledState == enabled || t.stopped {
		t.mu.Unlock()
		return
	}
	t.enabledState = enabled
	t.mu.Unlock()
	if enabled {
		t.enabled.Emit(struct{}{})
	} else {
		t.disabled.Emit(struct{}{})
	}
}

func (t *localTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	if err := t.track.Close(); err != nil {
		log.Error().Err(err).Str("module", "capture").Str("track_id", t.track.ID()).Msg("close track")
	}
}

// RTPTrack exposes the underlying RTP source for the session provider.
func (t *localTrack) RTPTrack() webrtc.TrackLocal { return t.track }
