package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

// attachment remembers everything Attach did so Detach can undo exactly that.
type attachment struct {
	track       core.Track
	participant domain.Identity
	kind        domain.TrackKind
	unsubs      []core.Unsubscribe
}

// AttachmentManager owns all track-to-surface bindings. A track is attached at
// most once; detaching an unattached track is a no-op. Races between event
// delivery and registry state are expected, so both directions are defensive.
type AttachmentManager struct {
	view core.View

	mu    sync.Mutex
	bound map[string]*attachment // by track ID
}

func NewAttachmentManager(view core.View) *AttachmentManager {
	return &AttachmentManager{
		view:  view,
		bound: make(map[string]*attachment),
	}
}

func (m *AttachmentManager) Attach(t core.Track, p core.Participant) {
	id := p.Identity()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bound[t.ID()]; ok {
		log.Debug().Str("module", "app.attach").Str("track", t.ID()).Msg("already attached, skipping")
		return
	}
	a := &attachment{track: t, participant: id, kind: t.Kind()}

	switch t.Kind() {
	case domain.TrackAudio:
		m.view.BindAudio(t)
	case domain.TrackVideo:
		m.view.CreateTile(id)
		m.view.BindTile(id, t)
		// Disable hides the tile without detaching; enable shows it again.
		a.unsubs = append(a.unsubs,
			t.OnEnabled(func() { m.view.SetTileVisible(id, true) }),
			t.OnDisabled(func() { m.view.SetTileVisible(id, false) }),
		)
	}

	m.bound[t.ID()] = a
	log.Info().Str("module", "app.attach").Str("track", t.ID()).Str("participant", string(id)).Str("kind", string(t.Kind())).Msg("attached")
}

func (m *AttachmentManager) Detach(t core.Track, _ core.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked(t.ID())
}

// DetachAll releases every binding; used on session teardown.
func (m *AttachmentManager) DetachAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.bound {
		m.detachLocked(id)
	}
}

func (m *AttachmentManager) detachLocked(trackID string) {
	a, ok := m.bound[trackID]
	if !ok {
		return
	}
	delete(m.bound, trackID)
	for _, off := range a.unsubs {
		off()
	}
	switch a.kind {
	case domain.TrackAudio:
		m.view.UnbindAudio(a.track)
	case domain.TrackVideo:
		m.view.RemoveTile(a.participant)
	}
	log.Info().Str("module", "app.attach").Str("track", trackID).Str("participant", string(a.participant)).Msg("detached")
}

// Attached reports whether a track currently holds a binding.
func (m *AttachmentManager) Attached(trackID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bound[trackID]
	return ok
}
