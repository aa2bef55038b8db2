package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

// fakeView records every surface mutation so tests can assert on the exact
// binding sequence.
type fakeView struct {
	mu sync.Mutex

	audio    map[string]struct{}
	tiles    map[domain.Identity]string // participant -> bound track ID
	visible  map[domain.Identity]bool
	emphasis map[domain.Identity]core.Emphasis

	active  string // track ID on the active surface, "" when clear
	preview string

	attaches      int
	detaches      int
	activeClears  int
	previewClears int

	tileSelected core.Event[domain.Identity]
}

func newFakeView() *fakeView {
	return &fakeView{
		audio:    make(map[string]struct{}),
		tiles:    make(map[domain.Identity]string),
		visible:  make(map[domain.Identity]bool),
		emphasis: make(map[domain.Identity]core.Emphasis),
	}
}

func (v *fakeView) BindAudio(t core.Track) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.audio[t.ID()] = struct{}{}
	v.attaches++
}

func (v *fakeView) UnbindAudio(t core.Track) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.audio, t.ID())
	v.detaches++
}

func (v *fakeView) CreateTile(id domain.Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.tiles[id]; !ok {
		v.tiles[id] = ""
		v.visible[id] = true
	}
}

func (v *fakeView) BindTile(id domain.Identity, t core.Track) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tiles[id] = t.ID()
	v.attaches++
}

func (v *fakeView) RemoveTile(id domain.Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.tiles[id]; ok {
		delete(v.tiles, id)
		delete(v.visible, id)
		v.detaches++
	}
}

func (v *fakeView) SetTileVisible(id domain.Identity, visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible[id] = visible
}

func (v *fakeView) SetEmphasis(id domain.Identity, e core.Emphasis) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emphasis[id] = e
}

func (v *fakeView) BindActive(t core.Track) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = t.ID()
}

func (v *fakeView) ClearActive() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active != "" {
		v.activeClears++
	}
	v.active = ""
}

func (v *fakeView) BindPreview(t core.Track) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.preview = t.ID()
}

func (v *fakeView) ClearPreview() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.preview != "" {
		v.previewClears++
	}
	v.preview = ""
}

func (v *fakeView) OnTileSelected(fn func(domain.Identity)) core.Unsubscribe {
	return v.tileSelected.Subscribe(fn)
}

func (v *fakeView) emphasisOf(id domain.Identity) core.Emphasis {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emphasis[id]
}

func (v *fakeView) activeTrack() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *fakeView) previewTrack() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.preview
}

func (v *fakeView) visibleOf(id domain.Identity) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible[id]
}

func (v *fakeView) hasTile(id domain.Identity) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.tiles[id]
	return ok
}

func (v *fakeView) counts() (attaches, detaches int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attaches, v.detaches
}

// fakeTrack doubles as remote Track and capture LocalTrack.
type fakeTrack struct {
	id   string
	kind domain.TrackKind

	mu        sync.Mutex
	enabledOn bool
	stops     int

	enabled  core.Event[struct{}]
	disabled core.Event[struct{}]
}

func newFakeTrack(id string, kind domain.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabledOn: true}
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind { return t.kind }

func (t *fakeTrack) OnEnabled(fn func()) core.Unsubscribe {
	return t.enabled.Subscribe(func(struct{}) { fn() })
}

func (t *fakeTrack) OnDisabled(fn func()) core.Unsubscribe {
	return t.disabled.Subscribe(func(struct{}) { fn() })
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	changed := t.enabledOn != enabled
	t.enabledOn = enabled
	t.mu.Unlock()
	if !changed {
		return
	}
	if enabled {
		t.enabled.Emit(struct{}{})
	} else {
		t.disabled.Emit(struct{}{})
	}
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *fakeTrack) isEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabledOn
}

type fakePublication struct {
	sid  string
	kind domain.TrackKind

	mu    sync.Mutex
	track core.Track

	subscribed   core.Event[core.Track]
	unsubscribed core.Event[core.Track]
}

func (p *fakePublication) SID() string            { return p.sid }
func (p *fakePublication) Kind() domain.TrackKind { return p.kind }

func (p *fakePublication) Track() (core.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return nil, false
	}
	return p.track, true
}

func (p *fakePublication) OnSubscribed(fn func(core.Track)) core.Unsubscribe {
	return p.subscribed.Subscribe(fn)
}

func (p *fakePublication) OnUnsubscribed(fn func(core.Track)) core.Unsubscribe {
	return p.unsubscribed.Subscribe(fn)
}

func (p *fakePublication) subscribe(t core.Track) {
	p.mu.Lock()
	p.track = t
	p.mu.Unlock()
	p.subscribed.Emit(t)
}

func (p *fakePublication) unsubscribe() {
	p.mu.Lock()
	t := p.track
	p.track = nil
	p.mu.Unlock()
	if t != nil {
		p.unsubscribed.Emit(t)
	}
}

type fakeParticipant struct {
	id   domain.Identity
	role domain.Role

	mu   sync.Mutex
	pubs []core.Publication

	published core.Event[core.Publication]
}

func newFakeParticipant(id domain.Identity, role domain.Role) *fakeParticipant {
	return &fakeParticipant{id: id, role: role}
}

func (p *fakeParticipant) Identity() domain.Identity { return p.id }
func (p *fakeParticipant) Role() domain.Role         { return p.role }

func (p *fakeParticipant) Publications() []core.Publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Publication, len(p.pubs))
	copy(out, p.pubs)
	return out
}

func (p *fakeParticipant) OnTrackPublished(fn func(core.Publication)) core.Unsubscribe {
	return p.published.Subscribe(fn)
}

func (p *fakeParticipant) publish(pub *fakePublication) {
	p.mu.Lock()
	p.pubs = append(p.pubs, pub)
	p.mu.Unlock()
	p.published.Emit(pub)
}

type fakeSession struct {
	local *fakeParticipant

	mu          sync.Mutex
	remotes     []*fakeParticipant
	dominant    *fakeParticipant
	published   []core.LocalTrack
	unpublished []core.LocalTrack
	closes      int

	participantConnected    core.Event[core.Participant]
	participantDisconnected core.Event[core.Participant]
	dominantChanged         core.Event[core.Participant]
	disconnectedEv          core.Event[struct{}]
}

func newFakeSession(local *fakeParticipant) *fakeSession {
	return &fakeSession{local: local}
}

func (s *fakeSession) Room() domain.Room       { return domain.Room{Name: "test"} }
func (s *fakeSession) Local() core.Participant { return s.local }

func (s *fakeSession) DominantSpeaker() (core.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dominant == nil {
		return nil, false
	}
	return s.dominant, true
}

func (s *fakeSession) Participants() []core.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Participant, 0, len(s.remotes))
	for _, p := range s.remotes {
		out = append(out, p)
	}
	return out
}

func (s *fakeSession) PublishTrack(t core.LocalTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, t)
	return nil
}

func (s *fakeSession) UnpublishTrack(t core.LocalTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpublished = append(s.unpublished, t)
}

func (s *fakeSession) OnParticipantConnected(fn func(core.Participant)) core.Unsubscribe {
	return s.participantConnected.Subscribe(fn)
}

func (s *fakeSession) OnParticipantDisconnected(fn func(core.Participant)) core.Unsubscribe {
	return s.participantDisconnected.Subscribe(fn)
}

func (s *fakeSession) OnDominantSpeakerChanged(fn func(core.Participant)) core.Unsubscribe {
	return s.dominantChanged.Subscribe(fn)
}

func (s *fakeSession) OnDisconnected(fn func()) core.Unsubscribe {
	return s.disconnectedEv.Subscribe(func(struct{}) { fn() })
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSession) connect(p *fakeParticipant) {
	s.mu.Lock()
	s.remotes = append(s.remotes, p)
	s.mu.Unlock()
	s.participantConnected.Emit(p)
}

func (s *fakeSession) disconnect(p *fakeParticipant) {
	s.mu.Lock()
	for i, rp := range s.remotes {
		if rp == p {
			s.remotes = append(s.remotes[:i], s.remotes[i+1:]...)
			break
		}
	}
	if s.dominant == p {
		s.dominant = nil
	}
	s.mu.Unlock()
	s.participantDisconnected.Emit(p)
}

func (s *fakeSession) setDominant(p *fakeParticipant) {
	s.mu.Lock()
	s.dominant = p
	s.mu.Unlock()
	var cp core.Participant
	if p != nil {
		cp = p
	}
	s.dominantChanged.Emit(cp)
}

type fakeCapture struct {
	mu      sync.Mutex
	devices []domain.Device
	fail    map[string]error      // by device ID
	hook    func(deviceID string) // runs while the device is opening
	created []*fakeTrack
	next    int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{fail: make(map[string]error)}
}

func (c *fakeCapture) EnumerateDevices(kind domain.DeviceKind) []domain.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Device
	for _, d := range c.devices {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func (c *fakeCapture) CreateTrack(deviceID string, kind domain.TrackKind) (core.LocalTrack, error) {
	c.mu.Lock()
	if err, ok := c.fail[deviceID]; ok {
		c.mu.Unlock()
		return nil, err
	}
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(deviceID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	t := newFakeTrack(fmt.Sprintf("local-%s-%d", kind, c.next), kind)
	c.created = append(c.created, t)
	return t, nil
}

func (c *fakeCapture) setHook(fn func(deviceID string)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *fakeCapture) createdTracks() []*fakeTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fakeTrack, len(c.created))
	copy(out, c.created)
	return out
}

type fakeProvider struct {
	sess core.Session
	err  error

	mu       sync.Mutex
	connects int
}

func (p *fakeProvider) Connect(_ context.Context, _ core.Credentials, _ core.ConnectOptions) (core.Session, error) {
	p.mu.Lock()
	p.connects++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.sess, nil
}
