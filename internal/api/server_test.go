package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/hardwaremap"
	"github.com/char5742/pedald/internal/pedal"
	"github.com/char5742/pedald/internal/profile"
)

type apiFixture struct {
	env    *testEnv
	server *Server
	http   *httptest.Server
	opened []string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	env := newTestEnv(t, mappedPedal, unmappedPedal, otherPedal)
	f := &apiFixture{env: env}
	f.server = NewServer(env.svc, "127.0.0.1:0", env.reg, nil)
	f.server.openFolder = func(path string) error {
		f.opened = append(f.opened, path)
		return nil
	}
	f.http = httptest.NewServer(f.server.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrDeviceNotFound, http.StatusNotFound},
		{"no capture", ErrNoCapture, http.StatusNotFound},
		{"missing profile", profile.ErrProfileNotFound, http.StatusNotFound},
		{"taken", ErrPositionTaken, http.StatusConflict},
		{"unmapped", ErrDeviceUnmapped, http.StatusConflict},
		{"capture active", ErrCaptureActive, http.StatusConflict},
		{"profile exists", profile.ErrProfileExists, http.StatusConflict},
		{"default profile", profile.ErrDefaultProfile, http.StatusConflict},
		{"bad position", hardwaremap.ErrInvalidPosition, http.StatusBadRequest},
		{"bad switch", ErrInvalidSwitch, http.StatusBadRequest},
		{"bad name", profile.ErrInvalidName, http.StatusBadRequest},
		{"unknown key", binding.ErrUnknownKey, http.StatusBadRequest},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(wrapped(tt.err)))
		})
	}
}

func wrapped(err error) error {
	return errors.Join(errors.New("context"), err)
}

func TestHealthAndDevices(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, status)
	health := decode[map[string]any](t, body)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["running"])

	status, body = f.do(t, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, status)
	devices := decode[[]DeviceInfo](t, body)
	require.Len(t, devices, 3)
	assert.Equal(t, "other", devices[0].UniqueID)
	assert.Equal(t, "serial123", devices[1].UniqueID)
	assert.Equal(t, pedal.Left, devices[1].Bindings[0].Switch)
	assert.True(t, devices[1].Configured)
	assert.False(t, devices[0].Configured, "position 2 has no profile entry")

	status, body = f.do(t, http.MethodPost, "/api/devices/rescan", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]DeviceInfo](t, body), 3)
}

func TestPositionEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"invalid position", map[string]any{"deviceId": "serial123", "position": 0}, http.StatusBadRequest},
		{"taken", map[string]any{"deviceId": "serial123", "position": 2}, http.StatusConflict},
		{"unknown device", map[string]any{"deviceId": "missing", "position": 4}, http.StatusNotFound},
		{"malformed", "not an object", http.StatusBadRequest},
		{"assign", map[string]any{"deviceId": "/dev/hidraw1", "position": 7}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodPut, "/api/devices/position", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}

	pos, ok := f.env.hwmap.Lookup("/dev/hidraw1")
	require.True(t, ok)
	assert.Equal(t, 7, pos)

	status, body := f.do(t, http.MethodGet, "/api/hardware-map", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []MapEntry{
		{UniqueID: "other", Position: 2, Connected: true},
		{UniqueID: "serial123", Position: 3, Connected: true},
		{UniqueID: "/dev/hidraw1", Position: 7, Connected: true},
	}, decode[[]MapEntry](t, body))

	status, _ = f.do(t, http.MethodDelete, "/api/devices/position", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = f.do(t, http.MethodDelete, "/api/devices/position?deviceId=%2Fdev%2Fhidraw1", nil)
	require.Equal(t, http.StatusOK, status)
	devices := decode[[]DeviceInfo](t, body)
	assert.Equal(t, pedal.UnmappedBase, devices[len(devices)-1].Position)
}

func TestBindingEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPut, "/api/bindings", map[string]string{
		"deviceId": "serial123",
		"switch":   "middle",
		"binding":  "Ctrl+Shift+A",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	resp := decode[map[string]any](t, body)
	want := binding.Pack(keyA, true, true, false, false)
	assert.Equal(t, float64(want), resp["code"])
	assert.Equal(t, binding.Name(want), resp["name"])
	assert.Equal(t, want, f.env.device(t, "serial123").Snapshot().Bindings[pedal.Middle])

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"unknown key", map[string]string{"deviceId": "serial123", "switch": "left", "binding": "Hyper+Q"}, http.StatusBadRequest},
		{"unknown switch", map[string]string{"deviceId": "serial123", "switch": "pinky", "binding": "A"}, http.StatusBadRequest},
		{"unmapped", map[string]string{"deviceId": "/dev/hidraw1", "switch": "left", "binding": "A"}, http.StatusConflict},
		{"missing device", map[string]string{"deviceId": "missing", "switch": "left", "binding": "A"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodPut, "/api/bindings", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}

	status, _ = f.do(t, http.MethodDelete, "/api/bindings?deviceId=serial123", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, pedal.BindingSet{}, f.env.device(t, "serial123").Snapshot().Bindings)
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": "game"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = f.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": "game"})
	assert.Equal(t, http.StatusConflict, status)
	status, _ = f.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": "a/b"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := f.do(t, http.MethodPut, "/api/profiles/active", map[string]string{"profile": "game"})
	require.Equal(t, http.StatusOK, status)
	list := decode[ProfileList](t, body)
	assert.Equal(t, "game", list.Active)
	assert.Equal(t, []string{"default", "game"}, list.Profiles)

	status, _ = f.do(t, http.MethodPut, "/api/profiles/active", map[string]string{"profile": "missing"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodDelete, "/api/profiles?name=default", nil)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = f.do(t, http.MethodDelete, "/api/profiles?name=game", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = f.do(t, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, status)
	list = decode[ProfileList](t, body)
	assert.Equal(t, "default", list.Active)
	assert.Equal(t, f.env.dir.Path(), list.Dir)

	status, body = f.do(t, http.MethodPost, "/api/profiles", map[string]any{"name": "fresh", "apply": true})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "fresh", decode[map[string]string](t, body)["name"])
	status, body = f.do(t, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fresh", decode[ProfileList](t, body).Active)

	status, _ = f.do(t, http.MethodPost, "/api/profiles/open-folder", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{f.env.dir.Path()}, f.opened)
}

func TestCaptureEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/capture", map[string]string{"deviceId": "serial123", "switch": "left"})
	require.Equal(t, http.StatusAccepted, status, string(body))
	assert.NotEmpty(t, decode[map[string]string](t, body)["session"])

	status, _ = f.do(t, http.MethodPost, "/api/capture", map[string]string{"deviceId": "serial123", "switch": "right"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = f.do(t, http.MethodGet, "/api/capture", nil)
	require.Equal(t, http.StatusOK, status)
	st := decode[CaptureStatus](t, body)
	assert.True(t, st.Active)
	assert.Equal(t, "serial123", st.DeviceID)
	assert.Equal(t, "left", st.Switch)

	status, _ = f.do(t, http.MethodDelete, "/api/capture", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodDelete, "/api/capture", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/api/capture/arm", map[string]string{"deviceId": "/dev/hidraw1"})
	assert.Equal(t, http.StatusConflict, status)
	status, _ = f.do(t, http.MethodPost, "/api/capture/arm", map[string]string{"deviceId": "serial123"})
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "serial123", f.env.svc.CaptureStatus().Armed)
}

func TestReleaseModifiersAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/release-modifiers", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, f.env.inj.Releases())

	d := f.env.device(t, "serial123")
	f.env.svc.handleReport(d, at(0), []byte{0x01})

	status, body := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	text := string(body)
	assert.Contains(t, text, `pedald_edges_total{switch="left"} 1`)
	assert.Contains(t, text, `pedald_devices{mapped="true"} 2`)
}

func TestEventStream(t *testing.T) {
	f := newAPIFixture(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// ハンドラが購読を始めるまで待つ
	require.Eventually(t, func() bool {
		f.env.svc.events.mu.Lock()
		defer f.env.svc.events.mu.Unlock()
		return len(f.env.svc.events.subs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	d := f.env.device(t, "serial123")
	f.env.svc.handleReport(d, at(0), []byte{0x02})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventEdge, ev.Type)
	assert.Equal(t, "serial123", ev.DeviceID)
	assert.Equal(t, "middle", ev.Switch)

	// サービスが止まるとクローズフレームが届く
	f.env.svc.Stop()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err.Error())
			break
		}
	}
}
