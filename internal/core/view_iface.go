package core

import "github.com/dkeye/callview/internal/domain"

type Emphasis int

const (
	EmphasisNone Emphasis = iota
	EmphasisActive
	EmphasisPinned
)

func (e Emphasis) String() string {
	switch e {
	case EmphasisActive:
		return "active"
	case EmphasisPinned:
		return "pinned"
	default:
		return "none"
	}
}

// View is the rendering collaborator. It owns the visual/audio surfaces; the
// app layer decides what is bound where. All methods are expected to tolerate
// redundant calls (rebinding an already-bound surface, clearing a cleared one).
type View interface {
	// Hidden ambient audio surface.
	BindAudio(t Track)
	UnbindAudio(t Track)

	// Per-participant video tiles, keyed by identity.
	CreateTile(id domain.Identity)
	BindTile(id domain.Identity, t Track)
	RemoveTile(id domain.Identity)
	SetTileVisible(id domain.Identity, visible bool)
	SetEmphasis(id domain.Identity, e Emphasis)

	// The single large active-participant surface.
	BindActive(t Track)
	ClearActive()

	// Local capture preview.
	BindPreview(t Track)
	ClearPreview()

	// OnTileSelected fires when a human selects a participant's tile.
	OnTileSelected(fn func(domain.Identity)) Unsubscribe
}
