package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeDeadline は1回の書き込みに許す時間
	writeDeadline = 5 * time.Second
	// readDeadline はpongを含む受信がない場合に切断するまでの時間
	readDeadline = 90 * time.Second
	pingInterval = 30 * time.Second
	// クライアントからはcloseとpong以外届かない
	maxReadMessageSize = 1024
)

// CheckOriginは既定（同一オリジンのみ）のまま
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEvents はイベントをWebSocketでJSONとして流す
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	// 受信側は切断の検出だけを行う
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxReadMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readDeadline))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream connected")
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "service stopped"),
					time.Now().Add(writeDeadline))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}
