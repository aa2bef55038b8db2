package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callview/internal/domain"
)

func TestDeviceSelectionEnumerates(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	capture.devices = []domain.Device{
		{ID: "cam-1", Label: "Front", Kind: domain.DeviceVideoInput},
		{ID: "mic-1", Label: "Built-in", Kind: domain.DeviceAudioInput},
		{ID: "cam-2", Label: "Rear", Kind: domain.DeviceVideoInput},
	}

	sel := NewDeviceSelection(capture, newFakeView(), domain.DeviceVideoInput)
	devices := sel.Devices()

	require.Len(t, devices, 2)
	assert.Equal(t, "cam-1", devices[0].ID)
	assert.Equal(t, "cam-2", devices[1].ID)
}

func TestDeviceSelectionPreviewAndConfirm(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	view := newFakeView()
	sel := NewDeviceSelection(capture, view, domain.DeviceVideoInput)

	require.NoError(t, sel.Preview("cam-1"))
	first := capture.createdTracks()[0]
	assert.Equal(t, first.ID(), view.previewTrack())

	// Switching devices stops the previous preview capture.
	require.NoError(t, sel.Preview("cam-2"))
	assert.Equal(t, 1, first.stopCount())
	second := capture.createdTracks()[1]
	assert.Equal(t, second.ID(), view.previewTrack())

	id, err := sel.Confirm()
	require.NoError(t, err)
	assert.Equal(t, "cam-2", id)
	assert.Equal(t, 1, second.stopCount())
	assert.Empty(t, view.previewTrack())

	// The flow is over; nothing works afterwards.
	assert.ErrorIs(t, sel.Preview("cam-1"), ErrSelectionClosed)
	_, err = sel.Confirm()
	assert.ErrorIs(t, err, ErrSelectionClosed)
}

func TestDeviceSelectionConfirmWithoutPreview(t *testing.T) {
	t.Parallel()

	sel := NewDeviceSelection(newFakeCapture(), newFakeView(), domain.DeviceAudioInput)
	_, err := sel.Confirm()
	assert.ErrorIs(t, err, ErrNoDeviceChosen)
}

func TestDeviceSelectionPreviewFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	capture.fail["broken"] = errors.New("device busy")
	view := newFakeView()
	sel := NewDeviceSelection(capture, view, domain.DeviceVideoInput)

	require.NoError(t, sel.Preview("cam-1"))
	first := capture.createdTracks()[0]

	err := sel.Preview("broken")
	require.Error(t, err)
	assert.Zero(t, first.stopCount())
	assert.Equal(t, first.ID(), view.previewTrack())

	// The earlier device is still the one confirmed.
	id, confirmErr := sel.Confirm()
	require.NoError(t, confirmErr)
	assert.Equal(t, "cam-1", id)
}

func TestDeviceSelectionCloseStopsPreview(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	view := newFakeView()
	sel := NewDeviceSelection(capture, view, domain.DeviceVideoInput)

	require.NoError(t, sel.Preview("cam-1"))
	track := capture.createdTracks()[0]

	sel.Close()
	sel.Close()

	assert.Equal(t, 1, track.stopCount())
	assert.Empty(t, view.previewTrack())
	assert.ErrorIs(t, sel.Preview("cam-1"), ErrSelectionClosed)
}

func TestDeviceSelectionAudioPreviewSkipsPreviewSurface(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	view := newFakeView()
	sel := NewDeviceSelection(capture, view, domain.DeviceAudioInput)

	require.NoError(t, sel.Preview("mic-1"))
	assert.Empty(t, view.previewTrack())

	id, err := sel.Confirm()
	require.NoError(t, err)
	assert.Equal(t, "mic-1", id)
	assert.Equal(t, 1, capture.createdTracks()[0].stopCount())
}
