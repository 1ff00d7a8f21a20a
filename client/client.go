package client

import (
	"context"
	"net/http"

	"github.com/cloudflare/cfssl/log"
	"github.com/fundme/chain"
	"github.com/fundme/contract/fundme"
	"github.com/fundme/event"
	"github.com/fundme/meta"
	"github.com/gin-gonic/gin"
)

// EventStore 保存历史事件，未启用 redis 时为 nil
type EventStore interface {
	RecentEvents(ctx context.Context, n int64) ([]meta.Event, error)
}

// Server 处理前端用户的请求
type Server struct {
	chain  *chain.Chain
	ledger *fundme.FundMe
	hub    *event.Hub
	store  EventStore
	engine *gin.Engine
}

func NewServer(c *chain.Chain, ledger *fundme.FundMe, hub *event.Hub, store EventStore) *Server {
	s := &Server{chain: c, ledger: ledger, hub: hub, store: store}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(Cors()) // 使用跨域组件
	r.POST("/postTran", s.postTran)               // 提交一笔交易
	r.POST("/fund", s.fund)                       // 向 FundMe 转账
	r.POST("/withdraw", s.withdraw)               // owner 取出全部余额
	r.POST("/cheaperWithdraw", s.cheaperWithdraw) // 同上，读存储更少
	r.POST("/query", s.query)                     // 提供链上查询服务
	r.GET("/getLog", s.getLog)                    // 与前端建立websocket
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// 监听用户请求，直到 ctx 结束
func (s *Server) ListenRequest(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("client listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("client shutting down")
		return srv.Shutdown(context.Background())
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debugf("[client] %s %s %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" && c.Request.Method == http.MethodOptions {
			origin = "*"
		}
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Headers", "Content-Type,AccessToken,X-CSRF-Token, Authorization") //自定义 Header
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			c.Header("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
