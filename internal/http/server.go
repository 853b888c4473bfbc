package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ludoduel/internal/http/handlers"
	"ludoduel/internal/repository"
	"ludoduel/internal/service"
	"ludoduel/internal/ws"
)

// NewRouter собирает gin-роутер процесса игрока: только чтение состояния
// и поток снапшотов для отрисовщика. Мутаций через HTTP нет — авторитетное
// состояние меняется исключительно транзакциями в сторе.
func NewRouter(session *service.Session, hub *ws.Hub, history *repository.HistoryRepository, version string) *gin.Engine {
	r := gin.Default()

	// фронт отрисовщика живёт на другом origin
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.New(session, hub, history, version)
	h.Register(r)

	return r
}
