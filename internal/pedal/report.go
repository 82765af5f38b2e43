package pedal

import "time"

// DefaultDebounce は前回受理したレポートからこの時間未満のレポートを破棄する
const DefaultDebounce = 12 * time.Millisecond

// DefaultReportOffset はHIDレポート中のスイッチビットマスクの位置。
// hidrawはレポートIDを持たないデバイスでは先頭からデータを返す
const DefaultReportOffset = 0

// Debouncer はレポート単位でチャタリングを除去する。
// ゼロ値は最初のレポートを必ず受理する
type Debouncer struct {
	Floor time.Duration

	last     time.Time
	accepted bool
}

// Accept はatのレポートを受理するかを判定し、受理した場合は時刻を記録する。
// 破棄したレポートは状態を一切変えない
func (d *Debouncer) Accept(at time.Time) bool {
	if d.accepted && at.Sub(d.last) < d.Floor {
		return false
	}
	d.last = at
	d.accepted = true
	return true
}

// Reset は記録を消し、次のレポートを必ず受理させる
func (d *Debouncer) Reset() {
	d.last = time.Time{}
	d.accepted = false
}

// ReportMask はレポートからスイッチのビットマスクを取り出す。
// 短すぎるレポートはokがfalseになる
func ReportMask(data []byte, offset int) (mask byte, ok bool) {
	if offset < 0 || len(data) <= offset {
		return 0, false
	}
	return data[offset], true
}

// Levels はビットマスクを各スイッチの押下状態に分解する。
// 定義外のビットは無視する
func Levels(mask byte) [SwitchCount]bool {
	var levels [SwitchCount]bool
	for _, sw := range Switches {
		levels[sw] = mask&sw.Mask() != 0
	}
	return levels
}

// RisingEdges はprevで離されていてcurで押されたスイッチを左から順に返す
func RisingEdges(prev, cur byte) []Switch {
	var edges []Switch
	for _, sw := range Switches {
		if prev&sw.Mask() == 0 && cur&sw.Mask() != 0 {
			edges = append(edges, sw)
		}
	}
	return edges
}
