package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/hardwaremap"
	"github.com/char5742/pedald/internal/profile"
)

// Server はAPIサーバーを表す構造体
type Server struct {
	service *PedalService
	listen  string
	metrics http.Handler
	logger  zerolog.Logger

	// openFolder はディレクトリをファイルマネージャーで開く
	openFolder func(path string) error

	mutex  sync.Mutex
	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する。gathererがnilならデフォルトのレジストリを公開する
func NewServer(service *PedalService, listen string, gatherer prometheus.Gatherer, logger *zerolog.Logger) *Server {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("subsystem", "api").Logger()
	}
	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return &Server{
		service:    service,
		listen:     listen,
		metrics:    metricsHandler,
		logger:     l,
		openFolder: browser.OpenFile,
	}
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始する。Stopで止めるまで戻らない
func (s *Server) Start() error {
	s.mutex.Lock()
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mutex.Unlock()

	s.logger.Info().Str("listen", s.listen).Msg("API server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop はAPIサーバーを停止する
func (s *Server) Stop(ctx context.Context) error {
	s.mutex.Lock()
	srv := s.server
	s.mutex.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info().Msg("stopping API server")
	return srv.Shutdown(ctx)
}

// writeJSON はJSONレスポンスを書き込む
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Warn().Err(err).Msg("failed to encode response")
		}
	}
}

// writeError はエラーレスポンスを書き込む
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError はサービスのエラーを対応するステータスコードで返す
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrNoCapture),
		errors.Is(err, profile.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPositionTaken),
		errors.Is(err, ErrDeviceUnmapped),
		errors.Is(err, ErrCaptureActive),
		errors.Is(err, profile.ErrProfileExists),
		errors.Is(err, profile.ErrDefaultProfile):
		return http.StatusConflict
	case errors.Is(err, hardwaremap.ErrInvalidPosition),
		errors.Is(err, ErrInvalidSwitch),
		errors.Is(err, profile.ErrInvalidName),
		errors.Is(err, binding.ErrUnknownKey):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
