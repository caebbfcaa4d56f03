package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/member-dashboard-api/internal/metrics"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/realtime"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotStream opens live member snapshot subscriptions
type SnapshotStream interface {
	Subscribe(ctx context.Context) (*realtime.Subscription, error)
}

// MemberHandler handles member table endpoints
type MemberHandler struct {
	services *service.Services
	stream   SnapshotStream
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewMemberHandler creates a new MemberHandler. stream may be nil when the
// live feed is disabled.
func NewMemberHandler(services *service.Services, stream SnapshotStream, m *metrics.Metrics, log zerolog.Logger) *MemberHandler {
	return &MemberHandler{
		services: services,
		stream:   stream,
		metrics:  m,
		log:      log.With().Str("handler", "member").Logger(),
	}
}

// List handles GET /v1/members?search=&sort=&dir=&page=&page_size=
func (h *MemberHandler) List(c *gin.Context) {
	var q models.MemberQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	page, err := h.services.Member.Query(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, "failed to query members")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Create handles POST /v1/members
func (h *MemberHandler) Create(c *gin.Context) {
	var m models.Member
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	created, err := h.services.Member.Create(c.Request.Context(), &m)
	if err != nil {
		respondError(c, err, "failed to create member")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Get handles GET /v1/members/:id
func (h *MemberHandler) Get(c *gin.Context) {
	m, err := h.services.Member.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to get member")
		return
	}
	c.JSON(http.StatusOK, m)
}

// Update handles PUT /v1/members/:id
func (h *MemberHandler) Update(c *gin.Context) {
	var m models.Member
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	updated, err := h.services.Member.Update(c.Request.Context(), c.Param("id"), &m)
	if err != nil {
		respondError(c, err, "failed to update member")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /v1/members/:id
func (h *MemberHandler) Delete(c *gin.Context) {
	if err := h.services.Member.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "failed to delete member")
		return
	}
	c.Status(http.StatusNoContent)
}

// Export handles GET /v1/members/export
// Streams every member as CSV in template column order
func (h *MemberHandler) Export(c *gin.Context) {
	filename := fmt.Sprintf("members_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	count, err := h.services.Member.Export(c.Request.Context(), c.Writer)
	if err != nil {
		// headers are already sent
		h.log.Error().Err(err).Int("exported", count).Msg("Member export failed")
		return
	}
	h.log.Info().Int("exported", count).Msg("Member export completed")
}

// Stream handles GET /v1/members/stream
// Upgrades to a websocket and pushes a full snapshot on every change
func (h *MemberHandler) Stream(c *gin.Context) {
	if h.stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are disabled"})
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sub, err := h.stream.Subscribe(ctx)
	if err != nil {
		respondError(c, err, "failed to subscribe to member updates")
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.metrics.SubscriberOpened()
	defer h.metrics.SubscriberClosed()

	// the read loop only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.log.Debug().Err(err).Msg("Snapshot write failed")
				return
			}
		}
	}
}
