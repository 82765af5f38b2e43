package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/char5742/pedald/internal/consts"
)

type sinkCall struct {
	mouse   bool
	code    uint16
	value   int32
	pressed bool
}

type recordingSink struct {
	calls []sinkCall
}

func (s *recordingSink) HandleCaptureKey(_ time.Time, code uint16, value int32) {
	s.calls = append(s.calls, sinkCall{code: code, value: value})
}

func (s *recordingSink) HandleCaptureMouse(_ time.Time, button uint16, pressed bool) {
	s.calls = append(s.calls, sinkCall{mouse: true, code: button, pressed: pressed})
}

func TestDispatchKeyEvent(t *testing.T) {
	sink := &recordingSink{}
	now := time.Now()

	dispatchKeyEvent(sink, now, 30, 1)
	dispatchKeyEvent(sink, now, 30, 2)
	dispatchKeyEvent(sink, now, consts.MouseBtnLeft, 1)
	dispatchKeyEvent(sink, now, consts.MouseBtnRight, 0)
	dispatchKeyEvent(sink, now, consts.MouseBtnMiddle, 2)

	assert.Equal(t, []sinkCall{
		{code: 30, value: 1},
		{code: 30, value: 2},
		{mouse: true, code: consts.MouseBtnLeft, pressed: true},
		{mouse: true, code: consts.MouseBtnRight, pressed: false},
	}, sink.calls)
}

func TestDeviceTypeString(t *testing.T) {
	assert.Equal(t, "keyboard", DeviceTypeKeyboard.String())
	assert.Equal(t, "mouse", DeviceTypeMouse.String())
}
