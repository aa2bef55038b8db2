package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

type participantEntry struct {
	p      core.Participant
	unsubs []core.Unsubscribe
	// publication SIDs already wired, so a replayed publication is not
	// wired twice.
	wired map[string]struct{}
}

// Registry tracks the set of connected remote participants and the
// publications each exposes, and drives the attachment manager as
// subscriptions come and go.
type Registry struct {
	attach   *AttachmentManager
	selector *Selector

	mu           sync.Mutex
	participants map[domain.Identity]*participantEntry
}

func NewRegistry(attach *AttachmentManager, selector *Selector) *Registry {
	return &Registry{
		attach:       attach,
		selector:     selector,
		participants: make(map[domain.Identity]*participantEntry),
	}
}

// OnParticipantJoined registers the participant, subscribes to its future
// publications and replays any publications already present.
func (r *Registry) OnParticipantJoined(p core.Participant) {
	id := p.Identity()
	r.mu.Lock()
	if _, ok := r.participants[id]; ok {
		r.mu.Unlock()
		log.Debug().Str("module", "app.registry").Str("participant", string(id)).Msg("duplicate join, skipping")
		return
	}
	e := &participantEntry{p: p, wired: make(map[string]struct{})}
	e.unsubs = append(e.unsubs, p.OnTrackPublished(func(pub core.Publication) {
		r.OnPublicationAdded(pub, p)
	}))
	r.participants[id] = e
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("participant joined")

	for _, pub := range p.Publications() {
		r.OnPublicationAdded(pub, p)
	}
}

// OnPublicationAdded wires subscribe/unsubscribe transitions for one
// publication. A publication already carrying a subscribed track is attached
// immediately; the attachment manager guards against the subscribed event
// racing in right after.
func (r *Registry) OnPublicationAdded(pub core.Publication, p core.Participant) {
	id := p.Identity()
	r.mu.Lock()
	e, ok := r.participants[id]
	if !ok {
		r.mu.Unlock()
		log.Warn().Str("module", "app.registry").Str("participant", string(id)).Str("publication", pub.SID()).Msg("publication for unknown participant")
		return
	}
	if _, dup := e.wired[pub.SID()]; dup {
		r.mu.Unlock()
		return
	}
	e.wired[pub.SID()] = struct{}{}
	// The active surface shows a participant's video; a subscription change on
	// the active participant has to rebind it, not wait for the next
	// selection transition.
	e.unsubs = append(e.unsubs,
		pub.OnSubscribed(func(t core.Track) {
			r.attach.Attach(t, p)
			r.selector.RefreshActive(p)
		}),
		pub.OnUnsubscribed(func(t core.Track) {
			r.attach.Detach(t, p)
			r.selector.RefreshActive(p)
		}),
	)
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("participant", string(id)).Str("publication", pub.SID()).Str("kind", string(pub.Kind())).Msg("publication added")

	if t, ok := pub.Track(); ok {
		r.attach.Attach(t, p)
		r.selector.RefreshActive(p)
	}
}

// OnParticipantLeft removes bookkeeping, detaches anything still attached and
// signals the selector in case the leaving participant was the active one.
func (r *Registry) OnParticipantLeft(p core.Participant) {
	id := p.Identity()
	r.mu.Lock()
	e, ok := r.participants[id]
	if ok {
		delete(r.participants, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, off := range e.unsubs {
		off()
	}
	for _, pub := range p.Publications() {
		if t, ok := pub.Track(); ok {
			r.attach.Detach(t, p)
		}
	}
	r.selector.OnParticipantDisconnected(p)
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("participant left")
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Close unregisters every listener and releases every binding.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := make([]*participantEntry, 0, len(r.participants))
	for _, e := range r.participants {
		entries = append(entries, e)
	}
	r.participants = make(map[domain.Identity]*participantEntry)
	r.mu.Unlock()

	for _, e := range entries {
		for _, off := range e.unsubs {
			off()
		}
	}
	r.attach.DetachAll()
}
