package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/watchparty/internal/adapters/gateway"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RegisterDBRoutes serves the persistence collaborator API consumed by
// gateway.Client.
func RegisterDBRoutes(g *gin.RouterGroup, db core.Gateway) {
	h := dbHandlers{db: db}
	g.POST("/rooms", h.getOrCreateRoom)
	g.GET("/rooms/:room", h.getRoom)
	g.DELETE("/rooms/:room", h.deleteRoom)
	g.PUT("/rooms/:room/members/:user", h.addMember)
	g.DELETE("/rooms/:room/members/:user", h.removeMember)
	g.PUT("/rooms/:room/streamer", h.setStreamer)
	g.GET("/users/:user", h.getUser)
}

type dbHandlers struct {
	db core.Gateway
}

func (h dbHandlers) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	log.Error().Err(err).Str("module", "adapters.http.db").Str("op", op).Msg("db api")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h dbHandlers) getOrCreateRoom(c *gin.Context) {
	var seed domain.Room
	if err := c.ShouldBindJSON(&seed); err != nil {
		badRequest(c, err)
		return
	}
	if err := seed.ID.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	room, err := h.db.GetOrCreateRoom(c.Request.Context(), seed)
	if err != nil {
		h.fail(c, "get_or_create_room", err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h dbHandlers) getRoom(c *gin.Context) {
	rec, err := h.db.GetRoom(c.Request.Context(), domain.RoomID(c.Param("room")))
	if err != nil {
		h.fail(c, "get_room", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h dbHandlers) deleteRoom(c *gin.Context) {
	if err := h.db.DeleteRoom(c.Request.Context(), domain.RoomID(c.Param("room"))); err != nil {
		h.fail(c, "delete_room", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h dbHandlers) addMember(c *gin.Context) {
	var user domain.User
	if err := c.ShouldBindJSON(&user); err != nil {
		badRequest(c, err)
		return
	}
	user.ID = domain.UserID(c.Param("user"))
	if err := user.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.db.AddMember(c.Request.Context(), domain.RoomID(c.Param("room")), user)
	if err != nil {
		h.fail(c, "add_member", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h dbHandlers) removeMember(c *gin.Context) {
	err := h.db.RemoveMember(c.Request.Context(), domain.RoomID(c.Param("room")), domain.UserID(c.Param("user")))
	if err != nil {
		h.fail(c, "remove_member", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h dbHandlers) setStreamer(c *gin.Context) {
	var req gateway.StreamerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	room, err := h.db.SetStreamer(c.Request.Context(), domain.RoomID(c.Param("room")), req.Streamer)
	if err != nil {
		h.fail(c, "set_streamer", err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h dbHandlers) getUser(c *gin.Context) {
	u, err := h.db.GetUser(c.Request.Context(), domain.UserID(c.Param("user")))
	if err != nil {
		h.fail(c, "get_user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}
