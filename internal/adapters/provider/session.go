package provider

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

// wsSession implements core.Session on top of one signaling connection and
// one media connection. All incoming envelopes are dispatched from a single
// goroutine, so event handlers never run concurrently.
type wsSession struct {
	conn  *signalConn
	opts  core.ConnectOptions
	media *mediaConn

	// ready carries the join outcome exactly once.
	ready chan error

	mu       sync.Mutex
	room     domain.Room
	local    *localParticipant
	remotes  map[domain.Identity]*remoteParticipant
	dominant domain.Identity
	// remote RTP tracks that arrived before their publication announcement,
	// by track ID.
	pending map[string]*webrtc.TrackRemote
	joined  bool
	closed  bool

	participantConnected    core.Event[core.Participant]
	participantDisconnected core.Event[core.Participant]
	dominantChanged         core.Event[core.Participant]
	disconnected            core.Event[struct{}]
}

func newSession(ws *websocket.Conn, opts core.ConnectOptions) *wsSession {
	return &wsSession{
		conn:    newSignalConn(ws),
		opts:    opts,
		ready:   make(chan error, 1),
		local:   newLocalParticipant(domain.Identity(uuid.NewString())),
		remotes: make(map[domain.Identity]*remoteParticipant),
		pending: make(map[string]*webrtc.TrackRemote),
	}
}

func (s *wsSession) Room() domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *wsSession) Local() core.Participant { return s.local }

func (s *wsSession) DominantSpeaker() (core.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dominant == "" {
		return nil, false
	}
	p, ok := s.remotes[s.dominant]
	if !ok {
		return nil, false
	}
	return p, true
}

func (s *wsSession) Participants() []core.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Participant, 0, len(s.remotes))
	for _, p := range s.remotes {
		out = append(out, p)
	}
	return out
}

func (s *wsSession) PublishTrack(t core.LocalTrack) error {
	pub := s.local.addPublication(t)
	src, ok := t.(rtpTrackSource)
	if !ok {
		// Signaling-level publication only; nothing to negotiate.
		return nil
	}
	if err := s.media.AddLocalTrack(src.RTPTrack()); err != nil {
		s.local.removePublication(pub.SID())
		return err
	}
	if err := s.media.Offer(); err != nil {
		log.Error().Err(err).Str("module", "provider").Msg("renegotiate after publish")
	}
	return nil
}

func (s *wsSession) UnpublishTrack(t core.LocalTrack) {
	s.local.removePublication(t.ID())
	if src, ok := t.(rtpTrackSource); ok {
		s.media.RemoveLocalTrack(src.RTPTrack())
		if err := s.media.Offer(); err != nil {
			log.Error().Err(err).Str("module", "provider").Msg("renegotiate after unpublish")
		}
	}
}

func (s *wsSession) OnParticipantConnected(fn func(core.Participant)) core.Unsubscribe {
	return s.participantConnected.Subscribe(fn)
}

func (s *wsSession) OnParticipantDisconnected(fn func(core.Participant)) core.Unsubscribe {
	return s.participantDisconnected.Subscribe(fn)
}

func (s *wsSession) OnDominantSpeakerChanged(fn func(core.Participant)) core.Unsubscribe {
	return s.dominantChanged.Subscribe(fn)
}

func (s *wsSession) OnDisconnected(fn func()) core.Unsubscribe {
	return s.disconnected.Subscribe(func(struct{}) { fn() })
}

// Close leaves the session. The first call wins; the rest are no-ops.
func (s *wsSession) Close() { s.shutdown(true) }

func (s *wsSession) shutdown(sendLeave bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if sendLeave {
		_ = s.sendJSON(envelope{Type: "leave"})
	}
	if s.media != nil {
		s.media.Close()
	}
	s.conn.Close()
	s.disconnected.Emit(struct{}{})
	log.Info().Str("module", "provider").Msg("session closed")
}

func (s *wsSession) onMediaClosed() { s.shutdown(false) }

// handleRemoteTrack matches an incoming RTP track to its publication. The
// provider sets the stream ID to the publisher's identity and the track ID to
// the publication SID. A track racing ahead of its announcement is parked
// until the announcement arrives.
func (s *wsSession) handleRemoteTrack(tr *webrtc.TrackRemote) {
	identity := domain.Identity(tr.StreamID())

	// Park first, then look up: if the announcement lands in between, its
	// adoptPending finds the track instead of missing it.
	s.mu.Lock()
	s.pending[tr.ID()] = tr
	p, ok := s.remotes[identity]
	s.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "provider").Str("track_id", tr.ID()).Str("stream_id", tr.StreamID()).Msg("track before participant, parked")
		return
	}
	pub, ok := p.publication(tr.ID())
	if !ok {
		log.Debug().Str("module", "provider").Str("track_id", tr.ID()).Msg("track before publication, parked")
		return
	}
	s.adoptPending(pub)
}

// adoptPending attaches a parked RTP track to a just-announced publication.
func (s *wsSession) adoptPending(pub *remotePublication) {
	s.mu.Lock()
	tr, ok := s.pending[pub.SID()]
	if ok {
		delete(s.pending, pub.SID())
	}
	s.mu.Unlock()
	if ok {
		pub.setTrack(s.wrapRemote(tr, pub.Kind()))
	}
}

func (s *wsSession) wrapRemote(tr *webrtc.TrackRemote, kind domain.TrackKind) *remoteTrack {
	return &remoteTrack{id: tr.ID(), kind: kind}
}
