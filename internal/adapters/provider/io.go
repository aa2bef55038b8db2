package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// signalConn wraps the websocket with a buffered send queue so slow writes
// never block event dispatch.
type signalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newSignalConn(ws *websocket.Conn) *signalConn {
	return &signalConn{conn: ws, send: make(chan []byte, 32)}
}

func (c *signalConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *signalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// ---- envelopes ----

type envelope struct {
	Type string `json:"type"`
}

type joinEnvelope struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Name string `json:"name,omitempty"`
}

type sdpEnvelope struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateEnvelope struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type trackInfo struct {
	SID  string `json:"sid"`
	Kind string `json:"kind"`
}

type memberInfo struct {
	ID     string      `json:"id"`
	Name   string      `json:"name,omitempty"`
	Tracks []trackInfo `json:"tracks,omitempty"`
}

type roomStateMsg struct {
	Room     string       `json:"room"`
	Self     string       `json:"self"`
	Members  []memberInfo `json:"members"`
	Dominant string       `json:"dominant,omitempty"`
}

type memberMsg struct {
	User memberInfo `json:"user"`
}

type dominantMsg struct {
	ID string `json:"id"`
}

type trackMsg struct {
	Participant string `json:"participant"`
	SID         string `json:"sid"`
	Kind        string `json:"kind,omitempty"`
}

type errorMsg struct {
	Error string `json:"error"`
}

func (s *wsSession) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.TrySend(b)
}

func (s *wsSession) writePump() {
	for data := range s.conn.send {
		if err := s.conn.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "provider.io").Msg("writePump set deadline")
			return
		}
		if err := s.conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "provider.io").Msg("writePump write error")
			return
		}
	}
}

func (s *wsSession) readPump() {
	defer func() {
		log.Info().Str("module", "provider.io").Msg("readPump closing")
		s.shutdown(false)
	}()

	for {
		_, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				log.Error().Err(err).Str("module", "provider.io").Msg("readPump read error")
			}
			return
		}
		s.handleEnvelope(data)
	}
}

func (s *wsSession) handleEnvelope(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad json")
		return
	}

	switch env.Type {
	case "room_state":
		s.handleRoomState(data)
	case "member_joined":
		s.handleMemberJoined(data)
	case "member_left":
		s.handleMemberLeft(data)
	case "dominant_speaker":
		s.handleDominantSpeaker(data)
	case "track_published":
		s.handleTrackPublished(data)
	case "track_unpublished":
		s.handleTrackUnpublished(data)
	case "track_enabled":
		s.handleTrackToggle(data, true)
	case "track_disabled":
		s.handleTrackToggle(data, false)
	case "answer":
		s.handleAnswer(data)
	case "candidate":
		s.handleCandidate(data)
	case "error":
		s.handleError(data)
	case "pong":
	default:
		log.Warn().Str("module", "provider.io").Str("type", env.Type).Msg("unknown signal")
	}
}

func (s *wsSession) handleRoomState(data []byte) {
	var msg roomStateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		s.deliverReady(fmt.Errorf("bad room_state: %w", err))
		return
	}

	s.mu.Lock()
	s.room = domain.Room{Name: domain.RoomName(msg.Room)}
	if msg.Self != "" {
		s.local.identity = domain.Identity(msg.Self)
	}
	for _, m := range msg.Members {
		if domain.Identity(m.ID) == s.local.identity {
			continue
		}
		p := newRemoteParticipant(domain.Identity(m.ID))
		for _, t := range m.Tracks {
			// Direct insert: nobody is subscribed to this participant's
			// events yet, the registry replays publications on join.
			p.pubs[t.SID] = &remotePublication{sid: t.SID, kind: domain.TrackKind(t.Kind)}
		}
		s.remotes[p.identity] = p
	}
	s.dominant = domain.Identity(msg.Dominant)
	s.joined = true
	s.mu.Unlock()

	log.Info().Str("module", "provider").Str("room", msg.Room).Int("members", len(msg.Members)).Msg("room state")
	s.deliverReady(nil)
}

func (s *wsSession) handleMemberJoined(data []byte) {
	var msg memberMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad member_joined")
		return
	}
	identity := domain.Identity(msg.User.ID)

	s.mu.Lock()
	if _, ok := s.remotes[identity]; ok || identity == s.local.identity {
		s.mu.Unlock()
		return
	}
	p := newRemoteParticipant(identity)
	s.remotes[identity] = p
	s.mu.Unlock()

	s.participantConnected.Emit(p)
}

func (s *wsSession) handleMemberLeft(data []byte) {
	var msg memberMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad member_left")
		return
	}
	identity := domain.Identity(msg.User.ID)

	s.mu.Lock()
	p, ok := s.remotes[identity]
	if ok {
		delete(s.remotes, identity)
	}
	if s.dominant == identity {
		s.dominant = ""
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	// Unsubscribe everything the participant still had up.
	for _, pub := range p.Publications() {
		if rp, ok := pub.(*remotePublication); ok {
			rp.clearTrack()
		}
	}
	s.participantDisconnected.Emit(p)
}

func (s *wsSession) handleDominantSpeaker(data []byte) {
	var msg dominantMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad dominant_speaker")
		return
	}

	s.mu.Lock()
	s.dominant = domain.Identity(msg.ID)
	p := s.remotes[s.dominant]
	s.mu.Unlock()

	// cp stays nil when the dominant speaker cleared or already left; the
	// selector falls back to the local participant either way.
	var cp core.Participant
	if p != nil {
		cp = p
	}
	s.dominantChanged.Emit(cp)
}

func (s *wsSession) handleTrackPublished(data []byte) {
	var msg trackMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad track_published")
		return
	}

	s.mu.Lock()
	p, ok := s.remotes[domain.Identity(msg.Participant)]
	s.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "provider").Str("participant", msg.Participant).Msg("track_published for unknown participant")
		return
	}
	pub := p.addPublication(msg.SID, domain.TrackKind(msg.Kind))
	s.adoptPending(pub)
}

func (s *wsSession) handleTrackUnpublished(data []byte) {
	var msg trackMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad track_unpublished")
		return
	}

	s.mu.Lock()
	p, ok := s.remotes[domain.Identity(msg.Participant)]
	delete(s.pending, msg.SID)
	s.mu.Unlock()
	if !ok {
		return
	}
	p.removePublication(msg.SID)
}

func (s *wsSession) handleTrackToggle(data []byte, enabled bool) {
	var msg trackMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad track toggle")
		return
	}

	s.mu.Lock()
	p, ok := s.remotes[domain.Identity(msg.Participant)]
	s.mu.Unlock()
	if !ok {
		return
	}
	pub, ok := p.publication(msg.SID)
	if !ok {
		return
	}
	t, ok := pub.Track()
	if !ok {
		return
	}
	rt := t.(*remoteTrack)
	if enabled {
		rt.enabled.Emit(struct{}{})
	} else {
		rt.disabled.Emit(struct{}{})
	}
}

func (s *wsSession) handleAnswer(data []byte) {
	var msg sdpEnvelope
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad answer")
		return
	}
	if err := s.media.ApplyAnswer(msg.SDP); err != nil {
		log.Error().Err(err).Str("module", "provider.media").Msg("apply answer")
	}
}

func (s *wsSession) handleCandidate(data []byte) {
	var msg candidateEnvelope
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad candidate")
		return
	}
	if err := s.media.AddICECandidate(msg.Candidate); err != nil {
		log.Error().Err(err).Str("module", "provider.media").Msg("add candidate")
	}
}

func (s *wsSession) handleError(data []byte) {
	var msg errorMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "provider.io").Msg("bad error envelope")
		return
	}

	s.mu.Lock()
	joined := s.joined
	s.mu.Unlock()
	if !joined {
		s.deliverReady(fmt.Errorf("%w: %s", ErrConnectRejected, msg.Error))
		return
	}
	log.Warn().Str("module", "provider").Str("error", msg.Error).Msg("provider error")
}

func (s *wsSession) deliverReady(err error) {
	select {
	case s.ready <- err:
	default:
	}
}
