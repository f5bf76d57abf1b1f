package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Tandem/internal/adapters/signal"
	"github.com/dkeye/Tandem/internal/adapters/storage"
	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ContactBook is the contact-graph side of the store.
type ContactBook interface {
	RequestContact(ctx context.Context, from, to domain.UserID) error
	AcceptContact(ctx context.Context, me, from domain.UserID) error
	Contacts(ctx context.Context, uid domain.UserID) ([]storage.Contact, error)
	PendingRequests(ctx context.Context, uid domain.UserID) ([]storage.Contact, error)
}

type handlers struct {
	registry *app.Registry
	contacts ContactBook
}

type IdentifyRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type ContactRequest struct {
	ContactID string `json:"contactId" binding:"required"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"online":    h.registry.Online(),
	})
}

// identify stores the caller's identity in the cookie session; websockets
// opened with that cookie register automatically.
func (h *handlers) identify(c *gin.Context) {
	var req IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return
	}
	uid, err := domain.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := sessions.Default(c)
	sess.Set(signal.SessionUserKey, uid.String())
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": uid})
}

func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := sessions.Default(c).Get(signal.SessionUserKey).(string)
		uid, err := domain.ParseUserID(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identify first"})
			return
		}
		c.Set("user_id", uid)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	return c.MustGet("user_id").(domain.UserID)
}

func (h *handlers) listContacts(c *gin.Context) {
	list, err := h.contacts.Contacts(c.Request.Context(), currentUser(c))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list contacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list contacts"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) pendingRequests(c *gin.Context) {
	list, err := h.contacts.PendingRequests(c.Request.Context(), currentUser(c))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("pending requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get pending requests"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) requestContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contactId is required"})
		return
	}
	to, err := domain.ParseUserID(req.ContactID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	err = h.contacts.RequestContact(c.Request.Context(), me, to)
	switch {
	case errors.Is(err, storage.ErrSelfContact):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrContactExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("request contact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send contact request"})
	default:
		c.JSON(http.StatusCreated, gin.H{"contactId": to, "status": storage.StatusPending})
	}
}

func (h *handlers) acceptContact(c *gin.Context) {
	from, err := domain.ParseUserID(c.Param("contactId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err = h.contacts.AcceptContact(c.Request.Context(), currentUser(c), from)
	switch {
	case errors.Is(err, storage.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("accept contact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept contact request"})
	default:
		c.JSON(http.StatusOK, gin.H{"contactId": from, "status": storage.StatusAccepted})
	}
}
