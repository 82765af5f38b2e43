package api

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/capture"
	"github.com/char5742/pedald/internal/pedal"
)

type captureInput struct {
	at      time.Time
	code    uint16
	value   int32
	mouse   bool
	pressed bool
}

// captureQueue は入力ソースのゴルーチンからサービスへイベントを渡す。
// 入力ソースの停止を妨げないよう送信で待たない
type captureQueue struct {
	ch     chan captureInput
	logger *zerolog.Logger
}

func (q *captureQueue) HandleCaptureKey(at time.Time, code uint16, value int32) {
	q.push(captureInput{at: at, code: code, value: value})
}

func (q *captureQueue) HandleCaptureMouse(at time.Time, button uint16, pressed bool) {
	q.push(captureInput{at: at, code: button, mouse: true, pressed: pressed})
}

func (q *captureQueue) push(in captureInput) {
	select {
	case q.ch <- in:
	default:
		q.logger.Warn().Uint16("code", in.code).Msg("capture queue full, dropping input")
	}
}

type noInput struct{}

func (noInput) Start() ([]uint16, error) { return nil, nil }
func (noInput) Stop()                    {}

func (s *PedalService) captureLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.queue.ch:
			if in.mouse {
				s.HandleCaptureMouse(in.at, in.code, in.pressed)
			} else {
				s.HandleCaptureKey(in.at, in.code, in.value)
			}
		}
	}
}

// CaptureStatus はキー取り込みの状態
type CaptureStatus struct {
	Active    bool          `json:"active"`
	Session   string        `json:"session,omitempty"`
	DeviceID  string        `json:"deviceId,omitempty"`
	Switch    string        `json:"switch,omitempty"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	Guard     time.Duration `json:"guard"`
	Armed     string        `json:"armed,omitempty"`
}

// CaptureStatus は現在のキー取り込みの状態を返す
func (s *PedalService) CaptureStatus() CaptureStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := CaptureStatus{Guard: s.editor.Guard()}
	if target, ok := s.editor.Target(); ok {
		started := s.editor.StartedAt()
		st.Active = true
		st.Session = s.editor.Session()
		st.DeviceID = target.DeviceID
		st.Switch = target.Switch.String()
		st.StartedAt = &started
	}
	st.Armed, _ = s.editor.Armed()
	return st
}

// BeginCapture はデバイスのスイッチへのキー取り込みを開始し、セッションIDを返す。
// 取り込みの間は全デバイスの押下の送出を止める
func (s *PedalService) BeginCapture(uniqueID string, sw pedal.Switch) (string, error) {
	if !sw.Valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidSwitch, int(sw))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editor.Active() {
		return "", ErrCaptureActive
	}
	d, err := s.mappedDeviceLocked(uniqueID)
	if err != nil {
		return "", err
	}
	return s.beginCaptureLocked(d, sw, s.now())
}

// ArmCapture はデバイスの次のペダル押下で、押されたスイッチへの取り込みを始めるように予約する
func (s *PedalService) ArmCapture(uniqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editor.Active() {
		return ErrCaptureActive
	}
	d, err := s.mappedDeviceLocked(uniqueID)
	if err != nil {
		return err
	}
	s.editor.Arm(d.UniqueID())
	s.logger.Info().Str("device", d.UniqueID()).Msg("capture armed")
	s.publish(Event{Type: EventCapture, State: "armed", DeviceID: d.UniqueID(), Position: d.Position})
	return nil
}

// CancelCapture はキー取り込みと予約を取り消す
func (s *PedalService) CancelCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if out, ok := s.editor.Cancel(); ok {
		s.finishCaptureLocked(out)
		return nil
	}
	if armed, ok := s.editor.Armed(); ok {
		s.editor.Disarm()
		s.publish(Event{Type: EventCapture, State: "disarmed", DeviceID: armed})
		return nil
	}
	return ErrNoCapture
}

// HandleCaptureKey はキーボードのイベントをキー取り込みに渡す
func (s *PedalService) HandleCaptureKey(at time.Time, code uint16, value int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, done := s.editor.HandleKey(at, code, value); done {
		s.finishCaptureLocked(out)
	}
}

// HandleCaptureMouse はマウスボタンのイベントをキー取り込みに渡す
func (s *PedalService) HandleCaptureMouse(at time.Time, button uint16, pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, done := s.editor.HandleMouse(at, button, pressed); done {
		s.finishCaptureLocked(out)
	}
}

func (s *PedalService) beginCaptureLocked(d *pedal.Device, sw pedal.Switch, at time.Time) (string, error) {
	held, err := s.input.Start()
	if err != nil {
		return "", fmt.Errorf("start capture input: %w", err)
	}
	session := s.editor.Begin(capture.Target{DeviceID: d.UniqueID(), Switch: sw}, at, held)
	s.setSuppressedLocked(true)

	s.logger.Info().
		Str("session", session).
		Str("device", d.UniqueID()).
		Stringer("switch", sw).
		Msg("capture started")
	s.publish(Event{
		Type:     EventCapture,
		Time:     at,
		State:    "started",
		Session:  session,
		DeviceID: d.UniqueID(),
		Position: d.Position,
		Switch:   sw.String(),
	})
	return session, nil
}

func (s *PedalService) finishCaptureLocked(out capture.Outcome) {
	s.setSuppressedLocked(false)
	s.input.Stop()
	s.metrics.Captures.WithLabelValues(out.Kind.String()).Inc()

	if out.Kind != capture.Cancelled {
		if err := s.bindLocked(out.Target.DeviceID, out.Target.Switch, out.Code); err != nil {
			s.logger.Warn().Err(err).Str("session", out.Session).Msg("failed to store captured binding")
		}
	}

	s.logger.Info().
		Str("session", out.Session).
		Stringer("outcome", out.Kind).
		Str("binding", binding.Name(out.Code)).
		Msg("capture finished")
	s.publish(Event{
		Type:     EventCapture,
		State:    out.Kind.String(),
		Session:  out.Session,
		DeviceID: out.Target.DeviceID,
		Switch:   out.Target.Switch.String(),
		Code:     uint32(out.Code),
		Name:     binding.Name(out.Code),
	})
}

func (s *PedalService) setSuppressedLocked(suppressed bool) {
	for _, d := range s.devices {
		d.SetSuppressed(suppressed)
	}
}
