package provider

import (
	"sync"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

// remoteTrack is a subscribed remote media stream. Enable/disable transitions
// arrive over signaling, not over the media path.
type remoteTrack struct {
	id   string
	kind domain.TrackKind

	enabled  core.Event[struct{}]
	disabled core.Event[struct{}]
}

func (t *remoteTrack) ID() string             { return t.id }
func (t *remoteTrack) Kind() domain.TrackKind { return t.kind }

func (t *remoteTrack) OnEnabled(fn func()) core.Unsubscribe {
	return t.enabled.Subscribe(func(struct{}) { fn() })
}

func (t *remoteTrack) OnDisabled(fn func()) core.Unsubscribe {
	return t.disabled.Subscribe(func(struct{}) { fn() })
}

type remotePublication struct {
	sid  string
	kind domain.TrackKind

	mu    sync.Mutex
	track *remoteTrack

	subscribed   core.Event[core.Track]
	unsubscribed core.Event[core.Track]
}

func (p *remotePublication) SID() string            { return p.sid }
func (p *remotePublication) Kind() domain.TrackKind { return p.kind }

func (p *remotePublication) Track() (core.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return nil, false
	}
	return p.track, true
}

func (p *remotePublication) OnSubscribed(fn func(core.Track)) core.Unsubscribe {
	return p.subscribed.Subscribe(fn)
}

func (p *remotePublication) OnUnsubscribed(fn func(core.Track)) core.Unsubscribe {
	return p.unsubscribed.Subscribe(fn)
}

// setTrack transitions the publication to subscribed. Redundant arrivals of
// the same track are dropped.
func (p *remotePublication) setTrack(t *remoteTrack) {
	p.mu.Lock()
	if p.track != nil {
		p.mu.Unlock()
		return
	}
	p.track = t
	p.mu.Unlock()
	p.subscribed.Emit(t)
}

// clearTrack transitions back to unsubscribed, if subscribed at all.
func (p *remotePublication) clearTrack() {
	p.mu.Lock()
	t := p.track
	p.track = nil
	p.mu.Unlock()
	if t != nil {
		p.unsubscribed.Emit(t)
	}
}

type remoteParticipant struct {
	identity domain.Identity

	mu   sync.Mutex
	pubs map[string]*remotePublication

	published core.Event[core.Publication]
}

func newRemoteParticipant(identity domain.Identity) *remoteParticipant {
	return &remoteParticipant{
		identity: identity,
		pubs:     make(map[string]*remotePublication),
	}
}

func (p *remoteParticipant) Identity() domain.Identity { return p.identity }
func (p *remoteParticipant) Role() domain.Role         { return domain.RoleRemote }

func (p *remoteParticipant) Publications() []core.Publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Publication, 0, len(p.pubs))
	for _, pub := range p.pubs {
		out = append(out, pub)
	}
	return out
}

func (p *remoteParticipant) OnTrackPublished(fn func(core.Publication)) core.Unsubscribe {
	return p.published.Subscribe(fn)
}

// addPublication registers a newly announced publication and emits the
// published event. Duplicate announcements return the existing publication.
func (p *remoteParticipant) addPublication(sid string, kind domain.TrackKind) *remotePublication {
	p.mu.Lock()
	if pub, ok := p.pubs[sid]; ok {
		p.mu.Unlock()
		return pub
	}
	pub := &remotePublication{sid: sid, kind: kind}
	p.pubs[sid] = pub
	p.mu.Unlock()
	p.published.Emit(pub)
	return pub
}

func (p *remoteParticipant) publication(sid string) (*remotePublication, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub, ok := p.pubs[sid]
	return pub, ok
}

func (p *remoteParticipant) removePublication(sid string) {
	p.mu.Lock()
	pub, ok := p.pubs[sid]
	delete(p.pubs, sid)
	p.mu.Unlock()
	if ok {
		pub.clearTrack()
	}
}

// localPublication wraps a capture-owned track; it is always subscribed from
// the local point of view.
type localPublication struct {
	track core.LocalTrack
}

func (p *localPublication) SID() string                                      { return p.track.ID() }
func (p *localPublication) Kind() domain.TrackKind                           { return p.track.Kind() }
func (p *localPublication) Track() (core.Track, bool)                        { return p.track, true }
func (p *localPublication) OnSubscribed(func(core.Track)) core.Unsubscribe   { return func() {} }
func (p *localPublication) OnUnsubscribed(func(core.Track)) core.Unsubscribe { return func() {} }

type localParticipant struct {
	identity domain.Identity

	mu   sync.Mutex
	pubs map[string]*localPublication

	published core.Event[core.Publication]
}

func newLocalParticipant(identity domain.Identity) *localParticipant {
	return &localParticipant{
		identity: identity,
		pubs:     make(map[string]*localPublication),
	}
}

func (p *localParticipant) Identity() domain.Identity { return p.identity }
func (p *localParticipant) Role() domain.Role         { return domain.RoleLocal }

func (p *localParticipant) Publications() []core.Publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Publication, 0, len(p.pubs))
	for _, pub := range p.pubs {
		out = append(out, pub)
	}
	return out
}

func (p *localParticipant) OnTrackPublished(fn func(core.Publication)) core.Unsubscribe {
	return p.published.Subscribe(fn)
}

func (p *localParticipant) addPublication(t core.LocalTrack) *localPublication {
	p.mu.Lock()
	pub := &localPublication{track: t}
	p.pubs[t.ID()] = pub
	p.mu.Unlock()
	p.published.Emit(pub)
	return pub
}

func (p *localParticipant) removePublication(trackID string) {
	p.mu.Lock()
	delete(p.pubs, trackID)
	p.mu.Unlock()
}
