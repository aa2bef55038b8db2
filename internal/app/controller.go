package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

var (
	ErrAlreadyJoined = errors.New("a session is already live")
	ErrNoSession     = errors.New("no live session")
)

// JoinParams describes one join attempt.
type JoinParams struct {
	Room        domain.RoomName
	DisplayName string
	// Preferred capture devices; empty means platform default. An empty kind
	// entry still captures, a missing capability is expressed by the capture
	// provider failing.
	AudioDevice string
	VideoDevice string
}

// roomSession aggregates everything owned by one live call.
type roomSession struct {
	session  core.Session
	attach   *AttachmentManager
	registry *Registry
	selector *Selector
	local    map[domain.TrackKind]core.LocalTrack
	unsubs   []core.Unsubscribe
	done     chan struct{}
}

// Controller owns the lifecycle of the call session: connect, run,
// disconnect. At most one session is live at a time.
type Controller struct {
	Provider core.SessionProvider
	Capture  core.CaptureProvider
	View     core.View

	mu   sync.Mutex
	live *roomSession
}

func NewController(provider core.SessionProvider, capture core.CaptureProvider, view core.View) *Controller {
	return &Controller{Provider: provider, Capture: capture, View: view}
}

// Join connects to the room and blocks until the session ends, however it
// ends: explicit Disconnect, provider-side disconnect or ctx cancellation.
// On connection failure nothing is attached and no session state is retained.
func (c *Controller) Join(ctx context.Context, creds core.Credentials, params JoinParams) error {
	c.mu.Lock()
	if c.live != nil {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.mu.Unlock()

	local, err := c.captureLocal(params)
	if err != nil {
		return err
	}

	sess, err := c.Provider.Connect(ctx, creds, core.ConnectOptions{
		Room:        params.Room,
		DisplayName: params.DisplayName,
	})
	if err != nil {
		stopTracks(local)
		return fmt.Errorf("connect: %w", err)
	}

	rs := &roomSession{
		session: sess,
		local:   local,
		done:    make(chan struct{}),
	}
	rs.attach = NewAttachmentManager(c.View)
	rs.selector = NewSelector(c.View)
	rs.selector.Bind(sess)
	rs.registry = NewRegistry(rs.attach, rs.selector)

	c.mu.Lock()
	if c.live != nil {
		c.mu.Unlock()
		stopTracks(local)
		sess.Close()
		return ErrAlreadyJoined
	}
	c.live = rs
	c.mu.Unlock()

	c.wire(rs)
	log.Info().Str("module", "app.controller").Str("room", string(params.Room)).Msg("session established")

	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		c.Disconnect()
		<-rs.done
		return ctx.Err()
	}
}

// captureLocal opens the configured devices before connecting, so a capture
// failure surfaces to the caller without touching the provider.
func (c *Controller) captureLocal(params JoinParams) (map[domain.TrackKind]core.LocalTrack, error) {
	local := make(map[domain.TrackKind]core.LocalTrack)
	for kind, dev := range map[domain.TrackKind]string{
		domain.TrackAudio: params.AudioDevice,
		domain.TrackVideo: params.VideoDevice,
	} {
		t, err := c.Capture.CreateTrack(dev, kind)
		if err != nil {
			stopTracks(local)
			return nil, fmt.Errorf("capture %s: %w", kind, err)
		}
		local[kind] = t
	}
	return local, nil
}

// wire hooks the session's signals into the registry and selector, replays
// the already-connected participants and resolves the initial active one.
func (c *Controller) wire(rs *roomSession) {
	if t, ok := rs.local[domain.TrackVideo]; ok {
		c.View.BindPreview(t)
	}
	for _, t := range rs.local {
		if err := rs.session.PublishTrack(t); err != nil {
			log.Error().Err(err).Str("module", "app.controller").Str("kind", string(t.Kind())).Msg("publish local track")
		}
	}

	rs.unsubs = append(rs.unsubs,
		rs.session.OnParticipantConnected(rs.registry.OnParticipantJoined),
		rs.session.OnParticipantDisconnected(rs.registry.OnParticipantLeft),
		rs.session.OnDominantSpeakerChanged(func(core.Participant) { rs.selector.ResolveAutomatic() }),
		rs.session.OnDisconnected(func() { c.Disconnect() }),
		c.View.OnTileSelected(func(id domain.Identity) { c.togglePinByIdentity(rs, id) }),
	)

	for _, p := range rs.session.Participants() {
		rs.registry.OnParticipantJoined(p)
	}
	rs.selector.ResolveAutomatic()
}

// togglePinByIdentity maps a tile selection back to a participant. Selections
// can race a disconnect; an unknown identity is dropped.
func (c *Controller) togglePinByIdentity(rs *roomSession, id domain.Identity) {
	if local := rs.session.Local(); local != nil && local.Identity() == id {
		rs.selector.TogglePin(local)
		return
	}
	for _, p := range rs.session.Participants() {
		if p.Identity() == id {
			rs.selector.TogglePin(p)
			return
		}
	}
	log.Debug().Str("module", "app.controller").Str("participant", string(id)).Msg("tile selected for unknown participant")
}

// Disconnect tears the live session down. Every trigger source (user action,
// provider disconnect, ctx cancellation) converges here; calls after the
// first are no-ops.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	rs := c.live
	c.live = nil
	c.mu.Unlock()
	if rs == nil {
		return
	}

	for _, off := range rs.unsubs {
		off()
	}
	rs.registry.Close()
	rs.selector.Reset()
	if _, ok := rs.local[domain.TrackVideo]; ok {
		c.View.ClearPreview()
	}
	stopTracks(rs.local)
	rs.session.Close()
	close(rs.done)
	log.Info().Str("module", "app.controller").Msg("session ended")
}

// SetBackgrounded pauses or resumes local video capture without tearing the
// session down. Platforms without a visibility signal never call this.
func (c *Controller) SetBackgrounded(backgrounded bool) {
	c.mu.Lock()
	rs := c.live
	c.mu.Unlock()
	if rs == nil {
		return
	}
	if t, ok := rs.local[domain.TrackVideo]; ok {
		t.SetEnabled(!backgrounded)
		log.Info().Str("module", "app.controller").Bool("backgrounded", backgrounded).Msg("local video capture toggled")
	}
}

// StartDeviceSelection opens a device-picking flow. Works with or without a
// live session.
func (c *Controller) StartDeviceSelection(kind domain.DeviceKind) *DeviceSelection {
	return NewDeviceSelection(c.Capture, c.View, kind)
}

// ApplyDevice switches the live session's capture for one kind. The new
// track is opened first; on failure the previous track keeps running.
func (c *Controller) ApplyDevice(kind domain.TrackKind, deviceID string) error {
	c.mu.Lock()
	rs := c.live
	c.mu.Unlock()
	if rs == nil {
		return ErrNoSession
	}

	t, err := c.Capture.CreateTrack(deviceID, kind)
	if err != nil {
		return fmt.Errorf("capture %s: %w", kind, err)
	}

	// A disconnect can land while the device opens; its stopTracks has
	// already run, so the replacement must not outlive the session.
	c.mu.Lock()
	if c.live != rs {
		c.mu.Unlock()
		t.Stop()
		return ErrNoSession
	}
	old := rs.local[kind]
	rs.local[kind] = t
	c.mu.Unlock()

	if err := rs.session.PublishTrack(t); err != nil {
		log.Error().Err(err).Str("module", "app.controller").Str("kind", string(kind)).Msg("publish switched track")
	}
	if kind == domain.TrackVideo {
		c.View.BindPreview(t)
	}
	if old != nil {
		rs.session.UnpublishTrack(old)
		old.Stop()
	}
	log.Info().Str("module", "app.controller").Str("kind", string(kind)).Str("device", deviceID).Msg("capture device switched")
	return nil
}

// Connected reports whether a session is currently live.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

func stopTracks(local map[domain.TrackKind]core.LocalTrack) {
	for _, t := range local {
		t.Stop()
	}
}
