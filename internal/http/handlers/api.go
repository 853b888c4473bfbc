package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ludoduel/internal/repository"
	"ludoduel/internal/service"
	"ludoduel/internal/ws"
)

type Handler struct {
	Session *service.Session
	Hub     *ws.Hub
	History *repository.HistoryRepository // nil если DATABASE_URL не задан
	Version string
}

func New(session *service.Session, hub *ws.Hub, history *repository.HistoryRepository, version string) *Handler {
	return &Handler{
		Session: session,
		Hub:     hub,
		History: history,
		Version: version,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.GET("/state", h.State)
	r.GET("/history", h.RecentMatches)
	r.GET("/ws", h.WS)
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.Version,
		"client":  h.Session.ClientID,
		"seat":    h.Session.Seat(),
	})
}

// State отдаёт последний снапшот матча вместе с локальным остатком времени
func (h *Handler) State(c *gin.Context) {
	state, remaining, ok := h.Session.Snapshot()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"started": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     state,
		"remaining": remaining,
		"seat":      h.Session.Seat(),
	})
}

// RecentMatches — последние завершённые партии из истории
func (h *Handler) RecentMatches(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusOK, gin.H{"matches": []any{}})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	ctx, cancel := timeoutCtx(c, 5*time.Second)
	defer cancel()

	matches, err := h.History.Recent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// WS апгрейдит соединение и подключает отрисовщик к потоку снапшотов
func (h *Handler) WS(c *gin.Context) {
	h.Hub.Serve(c.Writer, c.Request)
}
