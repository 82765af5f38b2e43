package profile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/pedal"
)

// Profile は名前付きのペダル番号→バインディングの対応。
// 並行アクセスは呼び出し側で直列化する
type Profile struct {
	Name string
	Path string

	positions map[int]pedal.BindingSet
}

// New は空のプロファイルを作る
func New(name, path string) *Profile {
	return &Profile{Name: name, Path: path, positions: map[int]pedal.BindingSet{}}
}

// NameFromPath はファイル名から拡張子を除いたものをプロファイル名とする
func NameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Load はpathのプロファイルを読み込む。ファイルがなければ空のプロファイルを返す。
// 読み込みに失敗した場合も空のプロファイルとエラーの両方を返す
func Load(path string) (*Profile, error) {
	p := New(NameFromPath(path), path)

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, fmt.Errorf("read profile %s: %w", path, err)
	}
	p.positions, _ = Parse(bytes.NewReader(raw))
	return p, nil
}

// Save はプロファイル全体をPathに書き出す
func (p *Profile) Save() error {
	if p.Path == "" {
		return errors.New("profile has no path")
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, p.positions, time.Now()); err != nil {
		return err
	}
	if err := os.WriteFile(p.Path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write profile %s: %w", p.Path, err)
	}
	return nil
}

// Bindings はposのバインディングを返す。登録がなければすべて未割り当て
func (p *Profile) Bindings(pos int) pedal.BindingSet {
	return p.positions[pos]
}

// Has はposにエントリがあるかを返す
func (p *Profile) Has(pos int) bool {
	_, ok := p.positions[pos]
	return ok
}

// Set はposのバインディングを置き換える
func (p *Profile) Set(pos int, set pedal.BindingSet) {
	p.positions[pos] = set
}

// SetSwitch はposのswだけを置き換え、新しいバインディングを返す
func (p *Profile) SetSwitch(pos int, sw pedal.Switch, code binding.Code) pedal.BindingSet {
	set := p.positions[pos].With(sw, code)
	p.positions[pos] = set
	return set
}

// Clear はposの3つのスイッチをすべて未割り当てにする
func (p *Profile) Clear(pos int) {
	p.positions[pos] = pedal.BindingSet{}
}

// Positions は登録済みの位置の一覧を返す
func (p *Profile) Positions() map[int]pedal.BindingSet {
	out := make(map[int]pedal.BindingSet, len(p.positions))
	for pos, set := range p.positions {
		out[pos] = set
	}
	return out
}
