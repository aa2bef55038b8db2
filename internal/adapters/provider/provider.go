// Package provider implements core.SessionProvider over a websocket
// signaling channel and a single WebRTC peer connection.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
)

const connectTimeout = 10 * time.Second

var ErrConnectRejected = errors.New("join rejected by provider")

type Provider struct {
	WebRTCConfig webrtc.Configuration
	// SetupEngine registers the codecs the local capture pipeline encodes
	// with. Nil means pion's default codec set.
	SetupEngine func(*webrtc.MediaEngine) error
}

func New() *Provider {
	return &Provider{WebRTCConfig: DefaultWebRTCConfig()}
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Connect dials the signaling endpoint, joins the room and negotiates the
// media connection. It returns only after the provider has confirmed the join
// (room_state); any failure before that leaves nothing behind.
func (p *Provider) Connect(ctx context.Context, creds core.Credentials, opts core.ConnectOptions) (core.Session, error) {
	header := http.Header{}
	if creds.Token != "" {
		header.Set("Authorization", "Bearer "+creds.Token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, creds.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial signaling: %w", err)
	}

	s := newSession(ws, opts)

	mc, err := newMediaConn(p.WebRTCConfig, p.SetupEngine, s)
	if err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("media connection: %w", err)
	}
	s.media = mc

	go s.writePump()
	go s.readPump()

	if err := s.sendJSON(joinEnvelope{Type: "join", Room: string(opts.Room), Name: opts.DisplayName}); err != nil {
		s.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}

	select {
	case err := <-s.ready:
		if err != nil {
			s.Close()
			return nil, err
		}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		s.Close()
		return nil, errors.New("join confirmation timeout")
	}

	if err := mc.Offer(); err != nil {
		s.Close()
		return nil, fmt.Errorf("initial offer: %w", err)
	}

	log.Info().Str("module", "provider").Str("room", string(opts.Room)).Str("identity", string(s.local.Identity())).Msg("session connected")
	return s, nil
}
