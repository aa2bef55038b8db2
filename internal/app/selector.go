package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

type selectionMode int

const (
	modeUnset selectionMode = iota
	modeAuto
	modePinned
)

// Selector owns the single source of truth for which participant is active.
// Automatic dominant-speaker signals always lose to an existing manual pin;
// the local participant is the fallback when no dominant speaker is reported.
type Selector struct {
	view core.View

	mu      sync.Mutex
	session core.Session
	mode    selectionMode
	active  core.Participant
}

func NewSelector(view core.View) *Selector {
	return &Selector{view: view}
}

// Bind attaches the selector to a live session. Must happen before the first
// ResolveAutomatic.
func (s *Selector) Bind(sess core.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// ResolveAutomatic recomputes the active participant as dominantSpeaker ??
// local. A manual pin always wins: while pinned this is a no-op.
func (s *Selector) ResolveAutomatic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modePinned {
		log.Debug().Str("module", "app.selector").Msg("pinned, ignoring automatic resolve")
		return
	}
	s.setActiveLocked(s.autoCandidateLocked(), modeAuto)
}

// Pin makes the participant active by explicit user choice, overriding any
// automatic selection.
func (s *Selector) Pin(p core.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setActiveLocked(p, modePinned)
}

// TogglePin pins p, or unpins and re-resolves automatically if p is already
// the pinned active participant.
func (s *Selector) TogglePin(p core.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modePinned && s.active != nil && s.active.Identity() == p.Identity() {
		s.setActiveLocked(s.autoCandidateLocked(), modeAuto)
		return
	}
	s.setActiveLocked(p, modePinned)
}

// RefreshActive rebinds the active surface after the participant's set of
// subscribed tracks changed. No-op unless p is the active participant.
func (s *Selector) RefreshActive(p core.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.Identity() != p.Identity() {
		return
	}
	if t, ok := primaryVideo(s.active); ok {
		s.view.BindActive(t)
	} else {
		s.view.ClearActive()
	}
}

// OnParticipantDisconnected clears a pin held by the leaving participant and
// re-resolves. Events may arrive in any order, so a stale call for a
// non-active participant does nothing.
func (s *Selector) OnParticipantDisconnected(p core.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.Identity() != p.Identity() {
		return
	}
	s.setActiveLocked(s.autoCandidateLocked(), modeAuto)
}

// Reset clears the selection and the active surface; used on teardown.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setActiveLocked(nil, modeUnset)
	s.session = nil
}

// Active returns the current active participant, if resolved.
func (s *Selector) Active() (core.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != nil
}

func (s *Selector) Pinned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == modePinned
}

func (s *Selector) autoCandidateLocked() core.Participant {
	if s.session == nil {
		return nil
	}
	if p, ok := s.session.DominantSpeaker(); ok {
		return p
	}
	return s.session.Local()
}

// setActiveLocked is the single transition point: demote the previous
// participant's emphasis, promote the new one, rebind the active surface.
func (s *Selector) setActiveLocked(p core.Participant, mode selectionMode) {
	prev := s.active
	if p == nil {
		if prev != nil {
			s.view.SetEmphasis(prev.Identity(), core.EmphasisNone)
		}
		s.active = nil
		s.mode = modeUnset
		s.view.ClearActive()
		return
	}

	if prev != nil && prev.Identity() != p.Identity() {
		s.view.SetEmphasis(prev.Identity(), core.EmphasisNone)
	}
	s.active = p
	s.mode = mode

	emphasis := core.EmphasisActive
	if mode == modePinned {
		emphasis = core.EmphasisPinned
	}
	s.view.SetEmphasis(p.Identity(), emphasis)

	if t, ok := primaryVideo(p); ok {
		s.view.BindActive(t)
	} else {
		s.view.ClearActive()
	}
	log.Info().Str("module", "app.selector").Str("participant", string(p.Identity())).Str("emphasis", emphasis.String()).Msg("active participant changed")
}

// primaryVideo returns the participant's first subscribed video track.
func primaryVideo(p core.Participant) (core.Track, bool) {
	for _, pub := range p.Publications() {
		if pub.Kind() != domain.TrackVideo {
			continue
		}
		if t, ok := pub.Track(); ok {
			return t, true
		}
	}
	return nil, false
}
