package inject

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/consts"
	"github.com/char5742/pedald/internal/types"
)

const keyA = 30

func TestSequenceOrdersModifiersAroundBaseKey(t *testing.T) {
	all := binding.PackModifiers(keyA, binding.ModShift|binding.ModCtrl|binding.ModAlt|binding.ModWin)

	down := Sequence(all, Down)
	assert.Equal(t, []Stroke{
		{consts.KeyLeftShift, true},
		{consts.KeyLeftCtrl, true},
		{consts.KeyLeftAlt, true},
		{consts.KeyLeftMeta, true},
		{keyA, true},
	}, down)

	up := Sequence(all, Up)
	assert.Equal(t, []Stroke{
		{keyA, false},
		{consts.KeyLeftMeta, false},
		{consts.KeyLeftAlt, false},
		{consts.KeyLeftCtrl, false},
		{consts.KeyLeftShift, false},
	}, up)
}

func TestSequence(t *testing.T) {
	tests := []struct {
		name string
		code binding.Code
		dir  Direction
		want []Stroke
	}{
		{
			name: "plain key down",
			code: binding.Code(keyA),
			dir:  Down,
			want: []Stroke{{keyA, true}},
		},
		{
			name: "ctrl+grave down",
			code: 0x20029,
			dir:  Down,
			want: []Stroke{{consts.KeyLeftCtrl, true}, {0x29, true}},
		},
		{
			name: "mouse left maps to BTN_LEFT",
			code: binding.Code(binding.MouseLeft),
			dir:  Down,
			want: []Stroke{{consts.MouseBtnLeft, true}},
		},
		{
			name: "mouse middle maps to BTN_MIDDLE",
			code: binding.Code(binding.MouseMiddle),
			dir:  Up,
			want: []Stroke{{consts.MouseBtnMiddle, false}},
		},
		{
			name: "shift+mouse right up",
			code: binding.PackModifiers(binding.MouseRight, binding.ModShift),
			dir:  Up,
			want: []Stroke{{consts.MouseBtnRight, false}, {consts.KeyLeftShift, false}},
		},
		{
			name: "modifier only",
			code: binding.Code(0x10000),
			dir:  Down,
			want: []Stroke{{consts.KeyLeftShift, true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sequence(tt.code, tt.dir))
		})
	}
}

func TestKeyCodesIncludeMouseButtons(t *testing.T) {
	codes := KeyCodes()
	assert.Contains(t, codes, uint16(consts.MouseBtnLeft))
	assert.Contains(t, codes, uint16(consts.MouseBtnMiddle))
	assert.Contains(t, codes, uint16(consts.MouseBtnRight))
	assert.Contains(t, codes, uint16(keyA))
	assert.NotContains(t, codes, uint16(0))
}

func decodeEvents(t *testing.T, raw []byte) []types.Event {
	t.Helper()
	var events []types.Event
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		var ev types.Event
		require.NoError(t, binary.Read(r, binary.LittleEndian, &ev))
		events = append(events, ev)
	}
	return events
}

func TestUinputWritesKeyEventsWithSync(t *testing.T) {
	var buf bytes.Buffer
	u := newWriterInjector(&buf)

	require.NoError(t, u.Inject(0x20029, Down))
	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 4)

	assert.Equal(t, uint16(consts.Key), events[0].Type)
	assert.Equal(t, uint16(consts.KeyLeftCtrl), events[0].Code)
	assert.Equal(t, int32(1), events[0].Value)
	assert.Equal(t, uint16(consts.Syn), events[1].Type)
	assert.Equal(t, uint16(0x29), events[2].Code)
	assert.Equal(t, int32(1), events[2].Value)
	assert.Equal(t, uint16(consts.Syn), events[3].Type)
}

func TestUinputIgnoresUnboundCode(t *testing.T) {
	var buf bytes.Buffer
	u := newWriterInjector(&buf)

	require.NoError(t, u.Inject(binding.Unbound, Down))
	assert.Zero(t, buf.Len())
}

func TestUinputReleaseAllModifiers(t *testing.T) {
	var buf bytes.Buffer
	u := newWriterInjector(&buf)

	require.NoError(t, u.ReleaseAllModifiers())
	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 8)

	var released []uint16
	for _, ev := range events {
		if ev.Type == consts.Key {
			assert.Equal(t, int32(0), ev.Value)
			released = append(released, ev.Code)
		}
	}
	assert.ElementsMatch(t, []uint16{consts.KeyLeftShift, consts.KeyLeftCtrl, consts.KeyLeftAlt, consts.KeyLeftMeta}, released)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("device gone") }

func TestUinputWrapsWriteErrors(t *testing.T) {
	u := newWriterInjector(failingWriter{})
	err := u.Inject(binding.Code(keyA), Up)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device gone")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(nil)
	require.NoError(t, r.Inject(binding.Code(keyA), Down))
	require.NoError(t, r.Inject(binding.Code(keyA), Up))
	require.NoError(t, r.ReleaseAllModifiers())

	assert.Equal(t, []Injection{
		{Code: binding.Code(keyA), Direction: Down},
		{Code: binding.Code(keyA), Direction: Up},
	}, r.Calls())
	assert.Equal(t, 1, r.Releases())

	boom := errors.New("boom")
	r.FailWith(boom)
	assert.ErrorIs(t, r.Inject(binding.Code(keyA), Down), boom)

	r.Reset()
	assert.Empty(t, r.Calls())
	assert.Zero(t, r.Releases())
}

func TestRegistrationsIncludePointerAxes(t *testing.T) {
	regs := registrations()
	has := func(request, arg uintptr) bool {
		for _, r := range regs {
			if r.request == request && r.arg == arg {
				return true
			}
		}
		return false
	}

	tests := []struct {
		name    string
		request uintptr
		arg     uintptr
	}{
		{"EV_KEY", consts.SetEvBit, consts.Key},
		{"EV_REL", consts.SetEvBit, consts.Rel},
		{"REL_X", consts.SetRelBit, consts.RelX},
		{"REL_Y", consts.SetRelBit, consts.RelY},
		{"BTN_LEFT", consts.SetKeyBit, consts.MouseBtnLeft},
		{"BTN_RIGHT", consts.SetKeyBit, consts.MouseBtnRight},
		{"BTN_MIDDLE", consts.SetKeyBit, consts.MouseBtnMiddle},
		{"KEY_A", consts.SetKeyBit, keyA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, has(tt.request, tt.arg))
		})
	}
	assert.Equal(t, registration{consts.SetEvBit, consts.Key, "EV_KEY"}, regs[0], "event types are registered before their codes")
}
