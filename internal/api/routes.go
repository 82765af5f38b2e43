package api

import (
	"encoding/json"
	"net/http"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/pedal"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)
	router.HandleFunc("POST /api/devices/rescan", s.handleRescan)
	router.HandleFunc("PUT /api/devices/position", s.handleAssignPosition)
	router.HandleFunc("DELETE /api/devices/position", s.handleUnmapDevice)
	router.HandleFunc("GET /api/hardware-map", s.handleGetHardwareMap)

	// バインディング関連のエンドポイント
	router.HandleFunc("PUT /api/bindings", s.handleBind)
	router.HandleFunc("DELETE /api/bindings", s.handleClearBindings)

	// プロファイル関連のエンドポイント
	router.HandleFunc("GET /api/profiles", s.handleGetProfiles)
	router.HandleFunc("POST /api/profiles", s.handleCreateProfile)
	router.HandleFunc("PUT /api/profiles/active", s.handleApplyProfile)
	router.HandleFunc("DELETE /api/profiles", s.handleDeleteProfile)
	router.HandleFunc("POST /api/profiles/open-folder", s.handleOpenFolder)

	// キー取り込み
	router.HandleFunc("GET /api/capture", s.handleCaptureStatus)
	router.HandleFunc("POST /api/capture", s.handleBeginCapture)
	router.HandleFunc("POST /api/capture/arm", s.handleArmCapture)
	router.HandleFunc("DELETE /api/capture", s.handleCancelCapture)

	router.HandleFunc("POST /api/release-modifiers", s.handleReleaseModifiers)
	router.HandleFunc("GET /api/events", s.handleEvents)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
	router.Handle("GET /metrics", s.metrics)
}

// decodeBody はリクエストボディをvに読み込む。失敗時は400を返してfalse
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return false
	}
	return true
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Devices())
}

// 再列挙ハンドラ
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Rescan(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.Devices())
}

// ハードウェアマップ取得ハンドラ
func (s *Server) handleGetHardwareMap(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.HardwareMap())
}

// 論理位置設定ハンドラ
func (s *Server) handleAssignPosition(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DeviceID string `json:"deviceId"`
		Position int    `json:"position"`
	}
	if !s.decodeBody(w, r, &request) {
		return
	}
	if err := s.service.AssignPosition(request.DeviceID, request.Position); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.Devices())
}

// 論理位置削除ハンドラ
func (s *Server) handleUnmapDevice(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("deviceId")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	if err := s.service.UnmapDevice(id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.Devices())
}

// バインディング設定ハンドラ。bindingは "Ctrl+Shift+A" のような表記か数値
func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DeviceID string       `json:"deviceId"`
		Switch   pedal.Switch `json:"switch"`
		Binding  string       `json:"binding"`
	}
	if !s.decodeBody(w, r, &request) {
		return
	}
	code, err := binding.ParseCode(request.Binding)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.service.Bind(request.DeviceID, request.Switch, code); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"code":   uint32(code),
		"name":   binding.Name(code),
	})
}

// バインディング削除ハンドラ
func (s *Server) handleClearBindings(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("deviceId")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	if err := s.service.ClearBindings(id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// プロファイル一覧取得ハンドラ
func (s *Server) handleGetProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Profiles()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// プロファイル作成ハンドラ。applyがtrueなら作成したプロファイルを適用する
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name  string `json:"name"`
		Apply bool   `json:"apply"`
	}
	if !s.decodeBody(w, r, &request) {
		return
	}
	name, err := s.service.CreateProfile(request.Name, request.Apply)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "name": name})
}

// プロファイル適用ハンドラ。profileは名前かパス
func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Profile string `json:"profile"`
	}
	if !s.decodeBody(w, r, &request) {
		return
	}
	if err := s.service.ApplyProfile(request.Profile); err != nil {
		s.writeServiceError(w, err)
		return
	}
	list, err := s.service.Profiles()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// プロファイル削除ハンドラ
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if err := s.service.DeleteProfile(name); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// プロファイルのフォルダを開くハンドラ
func (s *Server) handleOpenFolder(w http.ResponseWriter, r *http.Request) {
	dir := s.service.ProfileDir()
	if err := s.openFolder(dir); err != nil {
		s.writeError(w, http.StatusInternalServerError, "フォルダを開けませんでした: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "path": dir})
}

// キー取り込み状態取得ハンドラ
func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.CaptureStatus())
}

// キー取り込み開始ハンドラ
func (s *Server) handleBeginCapture(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DeviceID string       `json:"deviceId"`
		Switch   pedal.Switch `json:"switch"`
	}
	if !s.decodeBody(w, r, &request) {
		return
	}
	session, err := s.service.BeginCapture(request.DeviceID, request.Switch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "capturing", "session": session})
}

// キー取り込み予約ハンドラ
func (s *Server) handleArmCapture(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DeviceID string `json:"deviceId"`
	}
	if !s.decodeBody(w, r, &request) {
		return
	}
	if err := s.service.ArmCapture(request.DeviceID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "armed"})
}

// キー取り込み取消ハンドラ
func (s *Server) handleCancelCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelCapture(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// 修飾キー解放ハンドラ
func (s *Server) handleReleaseModifiers(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ReleaseAllModifiers(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.service.IsRunning(),
	})
}
