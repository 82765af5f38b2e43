// Package logging はアプリケーション全体で使うzerologのロガーを作る
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/config"
)

// New は設定に従ってルートロガーを作る。出力先はstderr
func New(cfg config.LogConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter はwに書き込むルートロガーを作る。
// 不明なレベルはinfoとして扱う
func NewWithWriter(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Subsystem はsubsystemフィールドを付けた子ロガーを返す
func Subsystem(logger *zerolog.Logger, name string) *zerolog.Logger {
	l := logger.With().Str("subsystem", name).Logger()
	return &l
}
