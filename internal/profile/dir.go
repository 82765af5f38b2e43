package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Ext はプロファイルファイルの拡張子
const Ext = ".cfg"

// DefaultName は削除できない既定プロファイルの名前
const DefaultName = "default"

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrDefaultProfile  = errors.New("the default profile cannot be deleted")
	ErrInvalidName     = errors.New("invalid profile name")
)

// Dir はプロファイルを <dir>/<name>.cfg として保存するディレクトリ
type Dir struct {
	path        string
	defaultName string
	logger      zerolog.Logger
}

// NewDir はpathをプロファイルディレクトリとするDirを作る。defaultNameが空ならDefaultName
func NewDir(path, defaultName string, logger *zerolog.Logger) *Dir {
	if defaultName == "" {
		defaultName = DefaultName
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("subsystem", "profile").Logger()
	}
	return &Dir{path: path, defaultName: defaultName, logger: l}
}

// Path はディレクトリのパスを返す
func (d *Dir) Path() string {
	return d.path
}

// DefaultName は既定プロファイルの名前を返す
func (d *Dir) DefaultName() string {
	return d.defaultName
}

// DefaultPath は既定プロファイルのパスを返す
func (d *Dir) DefaultPath() string {
	return d.pathOf(d.defaultName)
}

func (d *Dir) pathOf(name string) string {
	return filepath.Join(d.path, name+Ext)
}

// IsDefault はnameが既定プロファイルかどうかを返す
func (d *Dir) IsDefault(name string) bool {
	return strings.EqualFold(name, d.defaultName)
}

// EnsureDefault は既定プロファイルがなければ空のものを作り、そのパスを返す
func (d *Dir) EnsureDefault() (string, error) {
	path := d.DefaultPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return path, fmt.Errorf("stat default profile: %w", err)
	}
	if err := New(d.defaultName, path).Save(); err != nil {
		return path, err
	}
	d.logger.Info().Str("path", path).Msg("created default profile")
	return path, nil
}

// List はプロファイル名の一覧を返す。既定プロファイルが先頭で、残りは名前順
func (d *Dir) List() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(d.path, "*"+Ext))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	names := []string{d.defaultName}
	for _, f := range files {
		name := NameFromPath(f)
		if d.IsDefault(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names, nil
}

// Resolve はプロファイル名またはパスを実在するファイルに解決する。
// 空文字列は既定プロファイル。絶対パス、<dir>/<arg>、<dir>/<arg>.cfg の順に探す
func (d *Dir) Resolve(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return d.DefaultPath(), nil
	}

	var candidates []string
	if filepath.IsAbs(arg) {
		candidates = append(candidates, arg)
	} else {
		candidates = append(candidates, filepath.Join(d.path, arg), d.pathOf(arg))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrProfileNotFound, arg)
}

// Open は名前またはパスのプロファイルを読み込む
func (d *Dir) Open(arg string) (*Profile, error) {
	path, err := d.Resolve(arg)
	if err != nil {
		return nil, err
	}
	p, err := Load(path)
	if err != nil {
		d.logger.Warn().Err(err).Str("path", path).Msg("failed to read profile, using empty profile")
	}
	return p, nil
}

// ValidateName はプロファイル名として使えるかを確かめる
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) != name, name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Create は空のプロファイルを作る
func (d *Dir) Create(name string) (*Profile, error) {
	name = strings.TrimSuffix(name, Ext)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path := d.pathOf(name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrProfileExists, name)
	}

	p := New(name, path)
	if err := p.Save(); err != nil {
		return nil, err
	}
	d.logger.Info().Str("profile", name).Msg("created profile")
	return p, nil
}

// Delete はプロファイルを削除する。既定プロファイルは削除できない
func (d *Dir) Delete(name string) error {
	name = strings.TrimSuffix(name, Ext)
	if err := ValidateName(name); err != nil {
		return err
	}
	if d.IsDefault(name) {
		return ErrDefaultProfile
	}
	if err := os.Remove(d.pathOf(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return fmt.Errorf("delete profile %s: %w", name, err)
	}
	d.logger.Info().Str("profile", name).Msg("deleted profile")
	return nil
}
