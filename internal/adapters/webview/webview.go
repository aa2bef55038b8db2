// Package webview implements core.View by mirroring view state to a local
// browser page over a websocket. The browser renders; this side only decides
// what is bound where.
package webview

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

type viewOp struct {
	Op          string `json:"op"`
	Participant string `json:"participant,omitempty"`
	Track       string `json:"track,omitempty"`
	Visible     *bool  `json:"visible,omitempty"`
	Emphasis    string `json:"emphasis,omitempty"`
}

type tileState struct {
	track    string
	visible  bool
	emphasis core.Emphasis
}

// WebView fans view operations out to connected browser clients and keeps the
// current state so a late-connecting client gets a full replay.
type WebView struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	audio   map[string]struct{}
	tiles   map[domain.Identity]*tileState
	active  string
	preview string

	tileSelected core.Event[domain.Identity]
}

func New() *WebView {
	return &WebView{
		clients: make(map[*client]struct{}),
		audio:   make(map[string]struct{}),
		tiles:   make(map[domain.Identity]*tileState),
	}
}

func (w *WebView) BindAudio(t core.Track) {
	w.mu.Lock()
	w.audio[t.ID()] = struct{}{}
	w.broadcastLocked(viewOp{Op: "bind_audio", Track: t.ID()})
	w.mu.Unlock()
}

func (w *WebView) UnbindAudio(t core.Track) {
	w.mu.Lock()
	delete(w.audio, t.ID())
	w.broadcastLocked(viewOp{Op: "unbind_audio", Track: t.ID()})
	w.mu.Unlock()
}

func (w *WebView) CreateTile(id domain.Identity) {
	w.mu.Lock()
	if _, ok := w.tiles[id]; !ok {
		w.tiles[id] = &tileState{visible: true}
		w.broadcastLocked(viewOp{Op: "create_tile", Participant: string(id)})
	}
	w.mu.Unlock()
}

func (w *WebView) BindTile(id domain.Identity, t core.Track) {
	w.mu.Lock()
	if tile, ok := w.tiles[id]; ok {
		tile.track = t.ID()
		w.broadcastLocked(viewOp{Op: "bind_tile", Participant: string(id), Track: t.ID()})
	}
	w.mu.Unlock()
}

func (w *WebView) RemoveTile(id domain.Identity) {
	w.mu.Lock()
	if _, ok := w.tiles[id]; ok {
		delete(w.tiles, id)
		w.broadcastLocked(viewOp{Op: "remove_tile", Participant: string(id)})
	}
	w.mu.Unlock()
}

func (w *WebView) SetTileVisible(id domain.Identity, visible bool) {
	w.mu.Lock()
	if tile, ok := w.tiles[id]; ok {
		tile.visible = visible
		w.broadcastLocked(viewOp{Op: "tile_visible", Participant: string(id), Visible: &visible})
	}
	w.mu.Unlock()
}

func (w *WebView) SetEmphasis(id domain.Identity, e core.Emphasis) {
	w.mu.Lock()
	if tile, ok := w.tiles[id]; ok {
		tile.emphasis = e
	}
	// Emphasis is broadcast even without a tile: an audio-only participant
	// still gets its name plate decorated.
	w.broadcastLocked(viewOp{Op: "emphasis", Participant: string(id), Emphasis: e.String()})
	w.mu.Unlock()
}

func (w *WebView) BindActive(t core.Track) {
	w.mu.Lock()
	w.active = t.ID()
	w.broadcastLocked(viewOp{Op: "bind_active", Track: t.ID()})
	w.mu.Unlock()
}

func (w *WebView) ClearActive() {
	w.mu.Lock()
	if w.active != "" {
		w.active = ""
		w.broadcastLocked(viewOp{Op: "clear_active"})
	}
	w.mu.Unlock()
}

func (w *WebView) BindPreview(t core.Track) {
	w.mu.Lock()
	w.preview = t.ID()
	w.broadcastLocked(viewOp{Op: "bind_preview", Track: t.ID()})
	w.mu.Unlock()
}

func (w *WebView) ClearPreview() {
	w.mu.Lock()
	if w.preview != "" {
		w.preview = ""
		w.broadcastLocked(viewOp{Op: "clear_preview"})
	}
	w.mu.Unlock()
}

func (w *WebView) OnTileSelected(fn func(domain.Identity)) core.Unsubscribe {
	return w.tileSelected.Subscribe(fn)
}

func (w *WebView) broadcastLocked(op viewOp) {
	for c := range w.clients {
		if err := c.trySend(op); err != nil {
			log.Warn().Err(err).Str("module", "webview").Msg("dropping slow view client")
			delete(w.clients, c)
			c.close()
		}
	}
}

// replayLocked sends the full current state to one client.
func (w *WebView) replayLocked(c *client) {
	for id := range w.audio {
		_ = c.trySend(viewOp{Op: "bind_audio", Track: id})
	}
	for id, tile := range w.tiles {
		_ = c.trySend(viewOp{Op: "create_tile", Participant: string(id)})
		if tile.track != "" {
			_ = c.trySend(viewOp{Op: "bind_tile", Participant: string(id), Track: tile.track})
		}
		visible := tile.visible
		_ = c.trySend(viewOp{Op: "tile_visible", Participant: string(id), Visible: &visible})
		if tile.emphasis != core.EmphasisNone {
			_ = c.trySend(viewOp{Op: "emphasis", Participant: string(id), Emphasis: tile.emphasis.String()})
		}
	}
	if w.active != "" {
		_ = c.trySend(viewOp{Op: "bind_active", Track: w.active})
	}
	if w.preview != "" {
		_ = c.trySend(viewOp{Op: "bind_preview", Track: w.preview})
	}
}
