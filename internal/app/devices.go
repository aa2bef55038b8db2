package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

var (
	ErrSelectionClosed = errors.New("device selection closed")
	ErrNoDeviceChosen  = errors.New("no device previewed")
)

// DeviceSelection is a live device-picking flow for one capture kind.
// Whatever path ends the flow (Confirm, Close, repeated Close), the preview
// capture is stopped.
type DeviceSelection struct {
	capture core.CaptureProvider
	view    core.View
	kind    domain.DeviceKind

	mu       sync.Mutex
	preview  core.LocalTrack
	deviceID string
	closed   bool
}

func NewDeviceSelection(capture core.CaptureProvider, view core.View, kind domain.DeviceKind) *DeviceSelection {
	return &DeviceSelection{capture: capture, view: view, kind: kind}
}

func (d *DeviceSelection) Devices() []domain.Device {
	return d.capture.EnumerateDevices(d.kind)
}

// Preview starts capturing from the given device and, for video, binds it to
// the preview surface. On capture failure the previous preview is untouched.
func (d *DeviceSelection) Preview(deviceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrSelectionClosed
	}
	t, err := d.capture.CreateTrack(deviceID, d.kind.TrackKind())
	if err != nil {
		return fmt.Errorf("preview capture: %w", err)
	}
	d.stopPreviewLocked()
	d.preview = t
	d.deviceID = deviceID
	if t.Kind() == domain.TrackVideo {
		d.view.BindPreview(t)
	}
	log.Info().Str("module", "app.devices").Str("device", deviceID).Str("kind", string(d.kind)).Msg("previewing device")
	return nil
}

// Confirm ends the flow and returns the identifier of the last previewed
// device.
func (d *DeviceSelection) Confirm() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrSelectionClosed
	}
	if d.deviceID == "" {
		return "", ErrNoDeviceChosen
	}
	id := d.deviceID
	d.closeLocked()
	return id, nil
}

// Close ends the flow without choosing. Idempotent.
func (d *DeviceSelection) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
}

func (d *DeviceSelection) closeLocked() {
	if d.closed {
		return
	}
	d.closed = true
	d.stopPreviewLocked()
}

func (d *DeviceSelection) stopPreviewLocked() {
	if d.preview == nil {
		return
	}
	if d.preview.Kind() == domain.TrackVideo {
		d.view.ClearPreview()
	}
	d.preview.Stop()
	d.preview = nil
}
