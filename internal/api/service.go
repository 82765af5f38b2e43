package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/capture"
	"github.com/char5742/pedald/internal/features"
	"github.com/char5742/pedald/internal/hardwaremap"
	"github.com/char5742/pedald/internal/inject"
	"github.com/char5742/pedald/internal/metrics"
	"github.com/char5742/pedald/internal/pedal"
	"github.com/char5742/pedald/internal/profile"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceUnmapped = errors.New("device has no stored position")
	ErrPositionTaken  = errors.New("position is held by another connected device")
	ErrCaptureActive  = errors.New("binding capture already active")
	ErrNoCapture      = errors.New("no binding capture active")
	ErrInvalidSwitch  = errors.New("invalid switch")
)

// CaptureInput はキー取り込み中だけ動く入力ソース
type CaptureInput interface {
	// Start は読み取りを始め、その時点で押されているキーを返す
	Start() ([]uint16, error)
	Stop()
}

// Options はPedalServiceの依存と設定
type Options struct {
	// Scan は接続中のペダルを列挙する
	Scan func() ([]pedal.Identity, error)
	// OpenReport はレポートの読み取り元を開く。nilならhidrawを開く
	OpenReport func(path string) (io.ReadCloser, error)

	Injector    inject.Injector
	HardwareMap *hardwaremap.Store
	Profiles    *profile.Dir

	// InitialProfile は起動時に適用するプロファイルの名前かパス。空なら既定プロファイル
	InitialProfile string

	ReportOffset int
	Debounce     time.Duration
	CaptureGuard time.Duration

	// NewInput はキー取り込み用の入力ソースを作る。nilなら取り込み入力なし
	NewInput func(sink features.CaptureSink) CaptureInput
	// Monitor がnilならホットプラグを監視しない
	Monitor *features.MonitorOptions

	Metrics *metrics.Metrics
	Now     func() time.Time
	Logger  *zerolog.Logger
}

// PedalService はペダル・プロファイル・キー取り込みをまとめて管理する
type PedalService struct {
	opts     Options
	injector inject.Injector
	hwmap    *hardwaremap.Store
	profiles *profile.Dir
	metrics  *metrics.Metrics
	events   *EventBus
	now      func() time.Time
	logger   zerolog.Logger

	input CaptureInput
	queue *captureQueue

	// rescanMuは列挙全体を直列化する。読み取りの停止はmuを持たずに行う
	rescanMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopped bool
	devices []*pedal.Device
	readers []*features.ReportReader
	active  *profile.Profile
	editor  *capture.Editor
	monitor *features.DeviceMonitor
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPedalService は新しいPedalServiceを作成する
func NewPedalService(opts Options) (*PedalService, error) {
	switch {
	case opts.Scan == nil:
		return nil, errors.New("scan function is required")
	case opts.Injector == nil:
		return nil, errors.New("injector is required")
	case opts.HardwareMap == nil:
		return nil, errors.New("hardware map is required")
	case opts.Profiles == nil:
		return nil, errors.New("profile directory is required")
	}
	if opts.OpenReport == nil {
		opts.OpenReport = features.OpenHidraw
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := zerolog.Nop()
	if opts.Logger != nil {
		l = opts.Logger.With().Str("subsystem", "service").Logger()
	}

	s := &PedalService{
		opts:     opts,
		injector: opts.Injector,
		hwmap:    opts.HardwareMap,
		profiles: opts.Profiles,
		metrics:  opts.Metrics,
		events:   NewEventBus(),
		now:      opts.Now,
		logger:   l,
		active:   profile.New(opts.Profiles.DefaultName(), opts.Profiles.DefaultPath()),
		editor:   capture.NewEditor(opts.CaptureGuard),
	}
	s.queue = &captureQueue{ch: make(chan captureInput, 64), logger: &s.logger}
	if opts.NewInput != nil {
		s.input = opts.NewInput(s.queue)
	} else {
		s.input = noInput{}
	}
	return s, nil
}

// Start はサービスを開始する。修飾キーを解放し、プロファイルを読み込み、
// ペダルを列挙して監視を始める
func (s *PedalService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("サービスは既に実行中です")
	}
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("停止したサービスは再開できません")
	}

	if err := s.injector.ReleaseAllModifiers(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release modifiers")
	}
	if _, err := s.profiles.EnsureDefault(); err != nil {
		s.metrics.PersistenceErrors.WithLabelValues(metrics.StoreProfile).Inc()
		s.logger.Warn().Err(err).Msg("failed to create default profile")
	}
	p, err := s.profiles.Open(s.opts.InitialProfile)
	if err != nil {
		s.logger.Warn().Err(err).Str("profile", s.opts.InitialProfile).Msg("profile not found, using default")
		p, err = s.profiles.Open("")
	}
	if err == nil {
		s.active = p
	}
	s.logger.Info().Str("profile", s.active.Name).Str("path", s.active.Path).Msg("active profile")

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.captureLoop(loopCtx)
	s.mu.Unlock()

	if err := s.Rescan(); err != nil {
		s.logger.Warn().Err(err).Msg("initial device scan failed")
	}

	if s.opts.Monitor != nil {
		mon, err := features.NewDeviceMonitor(s.opts.Scan, *s.opts.Monitor, s.onDevicesChanged, &s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("hot-plug monitor unavailable")
			return nil
		}
		if err := mon.Start(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to start hot-plug monitor")
			return nil
		}
		s.mu.Lock()
		if !s.running {
			// 起動中にStopされた
			s.mu.Unlock()
			mon.Stop()
			return nil
		}
		s.monitor = mon
		s.mu.Unlock()
	}
	return nil
}

// Stop はサービスを停止する。押下中のキーをすべて解放してから戻る。Stop後に再開はできない
func (s *PedalService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	mon, cancel := s.monitor, s.cancel
	s.monitor, s.cancel = nil, nil
	s.mu.Unlock()

	// onChangeがRescanを呼ぶため、ロックを持たずに止める
	if mon != nil {
		mon.Stop()
	}

	s.rescanMu.Lock()
	s.stopReaders()
	s.mu.Lock()
	if out, ok := s.editor.Cancel(); ok {
		s.finishCaptureLocked(out)
	}
	s.editor.Disarm()
	for _, d := range s.devices {
		s.recordEmissions(d, d.Drain(s.injector))
	}
	s.devices = nil
	if err := s.injector.ReleaseAllModifiers(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release modifiers")
	}
	s.metrics.SetDevices(0, 0)
	s.mu.Unlock()
	s.rescanMu.Unlock()

	cancel()
	s.wg.Wait()
	s.events.Close()
	s.logger.Info().Msg("pedal service stopped")
}

// IsRunning はサービスが実行中かどうかを返す
func (s *PedalService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Subscribe はエッジやキー取り込みのイベントを購読する
func (s *PedalService) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}

func (s *PedalService) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	if dropped := s.events.Publish(e); dropped > 0 {
		s.logger.Debug().Int("dropped", dropped).Str("type", e.Type).Msg("slow event subscriber")
	}
}

func (s *PedalService) onDevicesChanged() {
	if !s.IsRunning() {
		return
	}
	if err := s.Rescan(); err != nil {
		s.logger.Warn().Err(err).Msg("rescan after hot-plug failed")
	}
}

// stopReaders は全読み取りを止める。muを持たずに呼ぶ
func (s *PedalService) stopReaders() {
	s.mu.Lock()
	readers := s.readers
	s.readers = nil
	s.mu.Unlock()

	for _, r := range readers {
		r.Stop()
	}
}

// Rescan はペダルを列挙し直す。読み取りを止め、全デバイスのラッチを解放してから
// デバイス一覧を作り直し、論理位置の順に並べてプロファイルのバインディングを適用する
func (s *PedalService) Rescan() error {
	s.rescanMu.Lock()
	defer s.rescanMu.Unlock()

	s.stopReaders()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		s.recordEmissions(d, d.Drain(s.injector))
	}

	ids, scanErr := s.opts.Scan()
	if scanErr != nil {
		ids = nil
	}

	uniqueIDs := make([]string, len(ids))
	for i, id := range ids {
		uniqueIDs[i] = id.UniqueID()
	}
	positions := s.hwmap.Resolve(uniqueIDs, pedal.UnmappedBase)

	devices := make([]*pedal.Device, len(ids))
	for i, id := range ids {
		devices[i] = pedal.NewDevice(id, positions[i], s.opts.Debounce)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Position < devices[j].Position
	})

	mapped := 0
	for _, d := range devices {
		d.ReplaceBindings(s.bindingsFor(d), s.injector)
		if d.Mapped() {
			mapped++
		}
	}
	s.devices = devices
	s.metrics.SetDevices(mapped, len(devices)-mapped)

	if target, ok := s.editor.Target(); ok {
		if s.findLocked(target.DeviceID) == nil {
			s.logger.Info().Str("device", target.DeviceID).Msg("capture device disappeared, cancelling capture")
			out, _ := s.editor.Cancel()
			s.finishCaptureLocked(out)
		} else {
			s.setSuppressedLocked(true)
		}
	}
	if armed, ok := s.editor.Armed(); ok && s.findLocked(armed) == nil {
		s.editor.Disarm()
	}

	for _, d := range devices {
		s.startReaderLocked(d)
	}

	s.logger.Info().Int("devices", len(devices)).Int("mapped", mapped).Msg("pedals enumerated")
	s.publish(Event{Type: EventDevices, Count: len(devices)})

	if scanErr != nil {
		return fmt.Errorf("enumerate pedals: %w", scanErr)
	}
	return nil
}

func (s *PedalService) startReaderLocked(d *pedal.Device) {
	r := features.NewReportReader(d.Path, func(at time.Time, data []byte) {
		s.handleReport(d, at, data)
	}, features.ReaderOptions{
		Open: s.opts.OpenReport,
		OnReadError: func(error) {
			s.metrics.ReadErrors.Inc()
		},
		OnStop: func(err error) {
			s.logger.Info().Err(err).Str("device", d.UniqueID()).Msg("pedal reader stopped")
		},
		Now:    s.now,
		Logger: &s.logger,
	})
	if err := r.Start(); err != nil {
		s.logger.Warn().Err(err).Str("path", d.Path).Msg("failed to open pedal")
		return
	}
	s.readers = append(s.readers, r)
}

// bindingsFor はデバイスに適用するバインディングを返す。
// 論理位置が未登録のデバイスには何も割り当てない
func (s *PedalService) bindingsFor(d *pedal.Device) pedal.BindingSet {
	if !d.Mapped() {
		return pedal.BindingSet{}
	}
	return s.active.Bindings(d.Position)
}

// handleReport は読み取りゴルーチンから受信したレポートを処理する
func (s *PedalService) handleReport(d *pedal.Device, at time.Time, data []byte) {
	mask, ok := pedal.ReportMask(data, s.opts.ReportOffset)
	if !ok {
		s.metrics.Reports.WithLabelValues(metrics.ResultMalformed).Inc()
		return
	}
	res := d.HandleReport(at, mask, s.injector)
	if !res.Accepted {
		s.metrics.Reports.WithLabelValues(metrics.ResultDebounced).Inc()
		return
	}
	s.metrics.Reports.WithLabelValues(metrics.ResultAccepted).Inc()
	s.recordEmissions(d, res.Emitted)

	for _, sw := range res.Edges {
		s.onEdge(d, sw, at)
	}
}

func (s *PedalService) onEdge(d *pedal.Device, sw pedal.Switch, at time.Time) {
	s.metrics.Edges.WithLabelValues(sw.String()).Inc()
	s.logger.Debug().Str("device", d.UniqueID()).Stringer("switch", sw).Msg("pedal pressed")
	s.publish(Event{Type: EventEdge, Time: at, DeviceID: d.UniqueID(), Position: d.Position, Switch: sw.String()})

	s.mu.Lock()
	defer s.mu.Unlock()
	armed, ok := s.editor.Armed()
	if !ok || s.editor.Active() || !strings.EqualFold(armed, d.UniqueID()) {
		return
	}
	if _, err := s.beginCaptureLocked(d, sw, at); err != nil {
		s.logger.Warn().Err(err).Msg("failed to start armed capture")
	}
}

func (s *PedalService) recordEmissions(d *pedal.Device, emitted []pedal.Emission) {
	for _, e := range emitted {
		s.metrics.Injections.WithLabelValues(e.Direction.String()).Inc()
		if e.Err != nil {
			s.metrics.InjectionErrors.Inc()
			s.logger.Warn().Err(e.Err).Str("device", d.UniqueID()).Stringer("switch", e.Switch).Msg("injection failed")
		}
		s.publish(Event{
			Type:      EventInjected,
			DeviceID:  d.UniqueID(),
			Position:  d.Position,
			Switch:    e.Switch.String(),
			Code:      uint32(e.Code),
			Name:      binding.Name(e.Code),
			Direction: e.Direction.String(),
		})
	}
}

func (s *PedalService) findLocked(uniqueID string) *pedal.Device {
	for _, d := range s.devices {
		if strings.EqualFold(d.UniqueID(), uniqueID) {
			return d
		}
	}
	return nil
}

func (s *PedalService) mappedDeviceLocked(uniqueID string) (*pedal.Device, error) {
	d := s.findLocked(uniqueID)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, uniqueID)
	}
	if !d.Mapped() {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnmapped, uniqueID)
	}
	return d, nil
}

// DeviceInfo は接続中のペダルの状態。Configuredは適用中のプロファイルにその位置のエントリがあるかどうか
type DeviceInfo struct {
	UniqueID   string                         `json:"uniqueId"`
	Path       string                         `json:"path"`
	Serial     string                         `json:"serial,omitempty"`
	Name       string                         `json:"name,omitempty"`
	Position   int                            `json:"position"`
	Mapped     bool                           `json:"mapped"`
	Bindings   [pedal.SwitchCount]BindingInfo `json:"bindings"`
	Latched    [pedal.SwitchCount]bool        `json:"latched"`
	Suppressed bool                           `json:"suppressed"`
	Configured bool                           `json:"configured"`
}

// BindingInfo はスイッチ1つのバインディング
type BindingInfo struct {
	Switch pedal.Switch `json:"switch"`
	Code   uint32       `json:"code"`
	Name   string       `json:"name"`
}

// Devices は接続中のペダルを論理位置の順に返す
func (s *PedalService) Devices() []DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]DeviceInfo, 0, len(s.devices))
	for _, d := range s.devices {
		snap := d.Snapshot()
		info := DeviceInfo{
			UniqueID:   snap.UniqueID,
			Path:       snap.Path,
			Serial:     snap.Serial,
			Name:       snap.Name,
			Position:   snap.Position,
			Mapped:     snap.Mapped,
			Latched:    snap.Latched,
			Suppressed: snap.Suppressed,
			Configured: snap.Mapped && s.active.Has(snap.Position),
		}
		for _, sw := range pedal.Switches {
			code := snap.Bindings[sw]
			info.Bindings[sw] = BindingInfo{Switch: sw, Code: uint32(code), Name: binding.Name(code)}
		}
		infos = append(infos, info)
	}
	return infos
}

// MapEntry はハードウェアマップの登録1件
type MapEntry struct {
	UniqueID  string `json:"uniqueId"`
	Position  int    `json:"position"`
	Connected bool   `json:"connected"`
}

// HardwareMap は保存済みの論理位置の登録を、未接続のデバイスも含めて返す
func (s *PedalService) HardwareMap() []MapEntry {
	entries := s.hwmap.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MapEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, MapEntry{
			UniqueID:  e.UniqueID,
			Position:  e.Position,
			Connected: s.findLocked(e.UniqueID) != nil,
		})
	}
	return out
}

// AssignPosition はデバイスを論理位置posに登録し、列挙し直す。
// 他の接続中のデバイスが使っている位置は割り当てられない
func (s *PedalService) AssignPosition(uniqueID string, pos int) error {
	if !hardwaremap.ValidPosition(pos) {
		return fmt.Errorf("%w: %d", hardwaremap.ErrInvalidPosition, pos)
	}

	s.mu.Lock()
	d := s.findLocked(uniqueID)
	if d == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, uniqueID)
	}
	for _, other := range s.devices {
		if other.Position == pos && !strings.EqualFold(other.UniqueID(), d.UniqueID()) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %d (%s)", ErrPositionTaken, pos, other.UniqueID())
		}
	}

	// 位置が変わる前に押下中のキーを解放し、列挙し直すまで新しい押下を送出しない
	d.SetSuppressed(true)
	s.recordEmissions(d, d.Drain(s.injector))
	previous, held := s.hwmap.Holder(pos)
	if err := s.hwmap.Assign(d.UniqueID(), pos); err != nil {
		s.metrics.PersistenceErrors.WithLabelValues(metrics.StoreHardwareMap).Inc()
		s.logger.Warn().Err(err).Msg("failed to save hardware map")
	}
	ev := s.logger.Info().Str("device", d.UniqueID()).Int("position", pos)
	if held && !strings.EqualFold(previous, d.UniqueID()) {
		ev = ev.Str("replaced", previous)
	}
	ev.Msg("assigned position")
	s.mu.Unlock()

	return s.Rescan()
}

// UnmapDevice はデバイスの論理位置の登録を削除し、列挙し直す
func (s *PedalService) UnmapDevice(uniqueID string) error {
	s.mu.Lock()
	if d := s.findLocked(uniqueID); d != nil {
		d.SetSuppressed(true)
		s.recordEmissions(d, d.Drain(s.injector))
		uniqueID = d.UniqueID()
	} else if _, ok := s.hwmap.Lookup(uniqueID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, uniqueID)
	}
	if err := s.hwmap.Remove(uniqueID); err != nil {
		s.metrics.PersistenceErrors.WithLabelValues(metrics.StoreHardwareMap).Inc()
		s.logger.Warn().Err(err).Msg("failed to save hardware map")
	}
	s.logger.Info().Str("device", uniqueID).Msg("removed position")
	s.mu.Unlock()

	return s.Rescan()
}

// Bind はデバイスのスイッチにcodeを割り当て、プロファイルをすぐに保存する
func (s *PedalService) Bind(uniqueID string, sw pedal.Switch, code binding.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindLocked(uniqueID, sw, code)
}

func (s *PedalService) bindLocked(uniqueID string, sw pedal.Switch, code binding.Code) error {
	if !sw.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSwitch, int(sw))
	}
	d, err := s.mappedDeviceLocked(uniqueID)
	if err != nil {
		return err
	}

	set := s.active.SetSwitch(d.Position, sw, code)
	s.saveProfileLocked()
	s.applyPositionLocked(d.Position, set)
	s.logger.Info().
		Int("position", d.Position).
		Stringer("switch", sw).
		Str("binding", binding.Name(code)).
		Msg("bound switch")
	return nil
}

// ClearBindings はデバイスの3つのスイッチをすべて未割り当てにする
func (s *PedalService) ClearBindings(uniqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.mappedDeviceLocked(uniqueID)
	if err != nil {
		return err
	}
	s.active.Clear(d.Position)
	s.saveProfileLocked()
	s.applyPositionLocked(d.Position, pedal.BindingSet{})
	s.logger.Info().Int("position", d.Position).Msg("cleared bindings")
	return nil
}

func (s *PedalService) saveProfileLocked() {
	if err := s.active.Save(); err != nil {
		s.metrics.PersistenceErrors.WithLabelValues(metrics.StoreProfile).Inc()
		s.logger.Warn().Err(err).Str("path", s.active.Path).Msg("failed to save profile")
	}
}

// applyPositionLocked は同じ論理位置の全デバイスにsetを適用する
func (s *PedalService) applyPositionLocked(pos int, set pedal.BindingSet) {
	for _, d := range s.devices {
		if d.Position == pos {
			s.recordEmissions(d, d.ReplaceBindings(set, s.injector))
		}
	}
}

// ProfileList はプロファイルの一覧
type ProfileList struct {
	Dir        string   `json:"dir"`
	Active     string   `json:"active"`
	ActivePath string   `json:"activePath"`
	Default    string   `json:"default"`
	Profiles   []string `json:"profiles"`
}

// Profiles はプロファイルの一覧と適用中のプロファイルを返す
func (s *PedalService) Profiles() (ProfileList, error) {
	names, err := s.profiles.List()
	if err != nil {
		return ProfileList{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return ProfileList{
		Dir:        s.profiles.Path(),
		Active:     s.active.Name,
		ActivePath: s.active.Path,
		Default:    s.profiles.DefaultName(),
		Profiles:   names,
	}, nil
}

// ProfileDir はプロファイルを置くディレクトリを返す
func (s *PedalService) ProfileDir() string {
	return s.profiles.Path()
}

// ApplyProfile は名前またはパスのプロファイルを読み込んで全デバイスに適用する
func (s *PedalService) ApplyProfile(nameOrPath string) error {
	p, err := s.profiles.Open(nameOrPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyProfileLocked(p)
	return nil
}

func (s *PedalService) applyProfileLocked(p *profile.Profile) {
	s.active = p
	for _, d := range s.devices {
		s.recordEmissions(d, d.ReplaceBindings(s.bindingsFor(d), s.injector))
	}
	s.logger.Info().
		Str("profile", p.Name).
		Str("path", p.Path).
		Int("positions", len(p.Positions())).
		Msg("applied profile")
	s.publish(Event{Type: EventProfile, Profile: p.Name})
}

// CreateProfile は空のプロファイルを作る。applyならそのまま全デバイスに適用する
func (s *PedalService) CreateProfile(name string, apply bool) (string, error) {
	p, err := s.profiles.Create(name)
	if err != nil {
		return "", err
	}
	if apply {
		s.mu.Lock()
		s.applyProfileLocked(p)
		s.mu.Unlock()
	}
	return p.Name, nil
}

// DeleteProfile はプロファイルを削除する。適用中のプロファイルを削除した場合は既定プロファイルに戻す
func (s *PedalService) DeleteProfile(name string) error {
	if err := s.profiles.Delete(name); err != nil {
		return err
	}
	deleted := filepath.Join(s.profiles.Path(), strings.TrimSuffix(name, profile.Ext)+profile.Ext)

	s.mu.Lock()
	defer s.mu.Unlock()
	if filepath.Clean(s.active.Path) != deleted {
		return nil
	}
	p, err := s.profiles.Open("")
	if err != nil {
		p = profile.New(s.profiles.DefaultName(), s.profiles.DefaultPath())
	}
	s.applyProfileLocked(p)
	return nil
}

// ReleaseAllModifiers は修飾キーをすべて解放する
func (s *PedalService) ReleaseAllModifiers() error {
	return s.injector.ReleaseAllModifiers()
}
