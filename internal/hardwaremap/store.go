// Package hardwaremap は物理デバイスの一意なIDと論理位置（ペダル番号）の対応を永続化する。
//
// ファイルは1行1エントリの "uniqueId=position" 形式で、IDは大文字小文字を区別しない。
package hardwaremap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultFileName はハードウェアマップの既定ファイル名
const DefaultFileName = "hardware.map"

// 登録可能な論理位置の範囲。100以上は未登録デバイスの一時的な位置に使う
const (
	MinPosition = 1
	MaxPosition = 99
)

// ErrInvalidPosition は範囲外の論理位置を登録しようとした場合のエラー
var ErrInvalidPosition = fmt.Errorf("position must be between %d and %d", MinPosition, MaxPosition)

// Entry はマップの1エントリ
type Entry struct {
	UniqueID string
	Position int
}

// Store はハードウェアマップ。最初のアクセスで一度だけファイルを読み込み、
// 以後はメモリ上の内容を正とし、変更のたびにファイル全体を書き直す
type Store struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	loaded  bool
	entries map[string]Entry // キーは小文字化したID
}

// New はpathを保存先とするStoreを作る。ファイルはまだ読まない
func New(path string, logger *zerolog.Logger) *Store {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("subsystem", "hardwaremap").Logger()
	}
	return &Store{path: path, logger: l, entries: map[string]Entry{}}
}

// Path は保存先のパスを返す
func (s *Store) Path() string {
	return s.path
}

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true

	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to read hardware map")
		}
		return
	}
	defer f.Close()

	entries, skipped := Parse(f)
	for _, e := range entries {
		s.entries[key(e.UniqueID)] = e
	}
	s.logger.Debug().Int("entries", len(s.entries)).Int("skipped", skipped).Msg("hardware map loaded")
}

// Parse は "uniqueId=position" 形式を読み込む。解釈できない行は読み飛ばし、その数を返す
func Parse(r io.Reader) (entries []Entry, skipped int) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, "=")
		if idx <= 0 {
			skipped++
			continue
		}
		id := strings.TrimSpace(line[:idx])
		pos, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if id == "" || err != nil || !ValidPosition(pos) {
			skipped++
			continue
		}
		entries = append(entries, Entry{UniqueID: id, Position: pos})
	}
	return entries, skipped
}

// ValidPosition は登録可能な論理位置かどうかを返す
func ValidPosition(pos int) bool {
	return pos >= MinPosition && pos <= MaxPosition
}

// Lookup はIDに登録された論理位置を返す
func (s *Store) Lookup(uniqueID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	e, ok := s.entries[key(uniqueID)]
	return e.Position, ok
}

// Holder はposを登録しているIDを返す
func (s *Store) Holder(pos int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	for _, e := range s.entries {
		if e.Position == pos {
			return e.UniqueID, true
		}
	}
	return "", false
}

// Assign はIDをposに登録してすぐに保存する。同じ位置を持っていた他のエントリは削除する。
// 保存に失敗した場合もメモリ上の変更は残り、エラーを返す
func (s *Store) Assign(uniqueID string, pos int) error {
	if !ValidPosition(pos) {
		return ErrInvalidPosition
	}
	if strings.TrimSpace(uniqueID) == "" {
		return errors.New("empty device id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	k := key(uniqueID)
	for other, e := range s.entries {
		if other != k && e.Position == pos {
			s.logger.Info().Str("device", e.UniqueID).Int("position", pos).Msg("evicting stale mapping")
			delete(s.entries, other)
		}
	}
	s.entries[k] = Entry{UniqueID: uniqueID, Position: pos}
	return s.saveLocked()
}

// Remove はIDの登録を削除してすぐに保存する。未登録なら何もしない
func (s *Store) Remove(uniqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	k := key(uniqueID)
	if _, ok := s.entries[k]; !ok {
		return nil
	}
	delete(s.entries, k)
	return s.saveLocked()
}

// Entries は全エントリを論理位置順に返す
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []Entry {
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Position != entries[j].Position {
			return entries[i].Position < entries[j].Position
		}
		return key(entries[i].UniqueID) < key(entries[j].UniqueID)
	})
	return entries
}

// Resolve はIDの並びに論理位置を割り当てる。登録済みのIDは保存された位置、
// 未登録のIDはUnmappedBaseから順に一時的な位置になる。一時的な位置は保存しない
func (s *Store) Resolve(uniqueIDs []string, unmappedBase int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	positions := make([]int, len(uniqueIDs))
	next := unmappedBase
	for i, id := range uniqueIDs {
		if e, ok := s.entries[key(id)]; ok {
			positions[i] = e.Position
			continue
		}
		positions[i] = next
		next++
	}
	return positions
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create hardware map directory: %w", err)
	}

	var b strings.Builder
	for _, e := range s.sortedLocked() {
		fmt.Fprintf(&b, "%s=%d\n", e.UniqueID, e.Position)
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write hardware map: %w", err)
	}
	return nil
}

func key(uniqueID string) string {
	return strings.ToLower(strings.TrimSpace(uniqueID))
}
