package provider

import (
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// rtpTrackSource is implemented by capture-backed local tracks that carry a
// real RTP source. Fake tracks in tests do not, and are then published on the
// signaling level only.
type rtpTrackSource interface {
	RTPTrack() webrtc.TrackLocal
}

// mediaConn wraps the single subscriber/publisher peer connection. The client
// always offers; the provider answers.
type mediaConn struct {
	pc   *webrtc.PeerConnection
	sess *wsSession

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender // by local track ID
}

func newMediaConn(cfg webrtc.Configuration, setupEngine func(*webrtc.MediaEngine) error, sess *wsSession) (*mediaConn, error) {
	engine := &webrtc.MediaEngine{}
	if setupEngine == nil {
		setupEngine = (*webrtc.MediaEngine).RegisterDefaultCodecs
	}
	if err := setupEngine(engine); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(engine), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &mediaConn{pc: pc, sess: sess, senders: make(map[string]*webrtc.RTPSender)}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := sess.sendJSON(candidateEnvelope{Type: "candidate", Candidate: cand.ToJSON()}); err != nil {
			log.Error().Err(err).Str("module", "provider.media").Msg("send candidate")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "provider.media").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track received")
		sess.handleRemoteTrack(track)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "provider.media").Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			sess.onMediaClosed()
		}
	})

	return c, nil
}

// Offer creates a local offer and ships it over signaling. Called on initial
// connect and on every publish/unpublish.
func (c *mediaConn) Offer() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return c.sess.sendJSON(sdpEnvelope{Type: "offer", SDP: offer.SDP})
}

func (c *mediaConn) ApplyAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (c *mediaConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *mediaConn) AddLocalTrack(t webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(t)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders[t.ID()] = sender
	c.mu.Unlock()
	return nil
}

func (c *mediaConn) RemoveLocalTrack(t webrtc.TrackLocal) {
	c.mu.Lock()
	sender, ok := c.senders[t.ID()]
	delete(c.senders, t.ID())
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.pc.RemoveTrack(sender); err != nil {
		log.Error().Err(err).Str("module", "provider.media").Str("track_id", t.ID()).Msg("remove track")
	}
}

func (c *mediaConn) Close() {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "provider.media").Msg("close error")
	}
}
