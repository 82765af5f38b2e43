package features

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/pedal"
)

// MonitorOptions はDeviceMonitorの設定
type MonitorOptions struct {
	// WatchDir はhidrawノードが作られるディレクトリ
	WatchDir string
	// RescanDelay はファイルシステムイベントをまとめる時間
	RescanDelay time.Duration
	// PollInterval はfsnotifyが取りこぼした変化を拾うためのポーリング間隔。0以下で無効
	PollInterval time.Duration
}

// DeviceMonitor はペダルの抜き差しを監視し、構成が変わったらonChangeを呼ぶ
type DeviceMonitor struct {
	scan     func() ([]pedal.Identity, error)
	opts     MonitorOptions
	onChange func()
	logger   zerolog.Logger

	watcher *fsnotify.Watcher

	mutex     sync.Mutex
	known     string
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
}

// NewDeviceMonitor は新しいDeviceMonitorを作成する
func NewDeviceMonitor(scan func() ([]pedal.Identity, error), opts MonitorOptions, onChange func(), logger *zerolog.Logger) (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.RescanDelay <= 0 {
		opts.RescanDelay = 500 * time.Millisecond
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("subsystem", "monitor").Logger()
	}
	return &DeviceMonitor{
		scan:     scan,
		opts:     opts,
		onChange: onChange,
		logger:   l,
		watcher:  watcher,
	}, nil
}

// Start はデバイスの監視を開始する
func (dm *DeviceMonitor) Start() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	if dm.isRunning {
		return nil
	}

	if dm.opts.WatchDir != "" {
		if err := dm.watcher.Add(dm.opts.WatchDir); err != nil {
			// ポーリングだけで続ける
			dm.logger.Warn().Err(err).Str("dir", dm.opts.WatchDir).Msg("failed to watch directory")
		} else {
			dm.logger.Info().Str("dir", dm.opts.WatchDir).Msg("watching for pedal hot-plug")
		}
	}

	dm.known = dm.fingerprint()
	dm.stopChan = make(chan struct{})
	dm.isRunning = true

	dm.wg.Add(1)
	go dm.watchEvents(dm.stopChan)
	if dm.opts.PollInterval > 0 {
		dm.wg.Add(1)
		go dm.runPolling(dm.stopChan)
	}
	return nil
}

// Stop はデバイスの監視を停止する。Stop後に再開はできない
func (dm *DeviceMonitor) Stop() {
	dm.mutex.Lock()
	if !dm.isRunning {
		dm.mutex.Unlock()
		return
	}
	dm.isRunning = false
	close(dm.stopChan)
	dm.mutex.Unlock()

	dm.watcher.Close()
	dm.wg.Wait()
	dm.logger.Info().Msg("device monitor stopped")
}

// 現在の構成を比較用の文字列にする
func (dm *DeviceMonitor) fingerprint() string {
	ids, err := dm.scan()
	if err != nil {
		dm.logger.Debug().Err(err).Msg("scan failed")
		return ""
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.Path+"|"+id.UniqueID())
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}

// changed は構成が前回から変わっていればtrueを返し、記録を更新する
func (dm *DeviceMonitor) changed() bool {
	fp := dm.fingerprint()
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	if fp == dm.known {
		return false
	}
	dm.known = fp
	return true
}

func (dm *DeviceMonitor) notify(reason string) {
	dm.logger.Info().Str("reason", reason).Msg("pedal configuration changed")
	if dm.onChange != nil {
		dm.onChange()
	}
}

// runPolling はデバイス構成を定期的に確認する
func (dm *DeviceMonitor) runPolling(stop <-chan struct{}) {
	defer dm.wg.Done()
	ticker := time.NewTicker(dm.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if dm.changed() {
				dm.notify("poll")
			}
		}
	}
}

func isHidrawEvent(event fsnotify.Event) bool {
	if !strings.HasPrefix(filepath.Base(event.Name), "hidraw") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Remove) != 0
}

// watchEvents はfsnotifyのイベントを監視し、続けて届いたイベントをまとめて処理する
func (dm *DeviceMonitor) watchEvents(stop <-chan struct{}) {
	defer dm.wg.Done()

	eventTimer := time.NewTimer(dm.opts.RescanDelay)
	eventTimer.Stop()
	defer eventTimer.Stop()
	pendingRescan := false

	for {
		select {
		case <-stop:
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				// イベントのあとは構成が同じでも通知する（同じパスへの差し替えがあり得る）
				dm.changed()
				dm.notify("fsnotify")
			}

		case event, ok := <-dm.watcher.Events:
			if !ok {
				return
			}
			if !isHidrawEvent(event) {
				continue
			}
			dm.logger.Debug().Str("op", event.Op.String()).Str("path", event.Name).Msg("hidraw event")
			if !pendingRescan {
				pendingRescan = true
				eventTimer.Reset(dm.opts.RescanDelay)
			}

		case err, ok := <-dm.watcher.Errors:
			if !ok {
				return
			}
			dm.logger.Warn().Err(err).Msg("watch error")
		}
	}
}
