package client

import (
	"net/http"
	"time"

	"github.com/cloudflare/cfssl/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upGrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 使用WebSocket向前端推送已提交的合约事件，前端断开时结束
func (s *Server) getLog(c *gin.Context) {
	// 升级请求为WebSocket协议
	ws, err := upGrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Info("Upgrade failed: ", err)
		return
	}
	defer ws.Close()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	// 读到错误说明前端已断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				log.Info(err)
				return
			}
		}
	}
}
