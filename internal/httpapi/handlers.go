package httpapi

import (
	"errors"
	"net/http"
	"time"

	"musicmatch-platform/internal/affinity"
	"musicmatch-platform/internal/audit"
	"musicmatch-platform/internal/auth"
	"musicmatch-platform/internal/callrequest"
	"musicmatch-platform/pkg/logger"
	"musicmatch-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth   *auth.Manager
	Ranker *affinity.Ranker
	Calls  *callrequest.Service
	Audit  *audit.Service

	// Redis backs the per-user in-flight dial cap; nil disables the cap.
	Redis   *redis.Client
	DialCap int
	DialTTL time.Duration
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Ranking ---

type rankRequest struct {
	Candidates []affinity.Candidate `json:"candidates"`
}

// RankCandidates scores the supplied candidates against the caller and
// returns them ordered by descending affinity.
func (h Handlers) RankCandidates(c *gin.Context) {
	if h.Ranker == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ranker not configured"})
		return
	}
	viewerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}

	var req rankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ranked, err := h.Ranker.Rank(c.Request.Context(), viewerID, req.Candidates)
	if err != nil {
		if errors.Is(err, affinity.ErrInvalidRankRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "candidates required"})
			return
		}
		logger.FromGin(c).Error("rank failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ranking failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": ranked})
}

// --- Call requests ---

type callPeerRequest struct {
	PeerID string `json:"peer_id"`
	Reason string `json:"reason,omitempty"`
}

// RequestCall creates (or returns) the pending call request toward a peer.
func (h Handlers) RequestCall(c *gin.Context) {
	me, req, ok := h.callInput(c)
	if !ok {
		return
	}

	// Cap concurrent dial dialogs per user across all instances.
	if h.Redis != nil && h.DialCap > 0 {
		acquired, err := utils.AcquireDialCap(c.Request.Context(), h.Redis, "dialcap:"+me, h.DialCap, h.dialTTL())
		if err != nil {
			logger.FromGin(c).Error("dial cap check failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call request failed"})
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent call requests"})
			return
		}
	}

	out, err := h.Calls.UpsertOutgoingRequest(c.Request.Context(), me, req.PeerID)
	if err != nil {
		h.releaseDialSlot(c, me)
		h.renderCallError(c, err)
		return
	}

	h.logTransition(c, audit.EventTypeCallRequested, me, out, "call requested")
	c.JSON(http.StatusOK, out)
}

// AcceptCall accepts the pending request the peer initiated.
func (h Handlers) AcceptCall(c *gin.Context) {
	me, req, ok := h.callInput(c)
	if !ok {
		return
	}

	out, found, err := h.Calls.AcceptIncomingRequest(c.Request.Context(), me, req.PeerID)
	if err != nil {
		h.renderCallError(c, err)
		return
	}
	if !found {
		// Lost the race to a prior cancel/response; routine, not a fault.
		c.JSON(http.StatusNotFound, gin.H{"error": "this request is no longer available"})
		return
	}
	h.releaseDialSlot(c, req.PeerID)
	h.logTransition(c, audit.EventTypeCallAccepted, me, out, "call accepted")
	c.JSON(http.StatusOK, out)
}

// RejectCall declines the pending request the peer initiated.
func (h Handlers) RejectCall(c *gin.Context) {
	me, req, ok := h.callInput(c)
	if !ok {
		return
	}

	out, found, err := h.Calls.RejectIncomingRequest(c.Request.Context(), me, req.PeerID, req.Reason)
	if err != nil {
		h.renderCallError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "this request is no longer available"})
		return
	}
	h.releaseDialSlot(c, req.PeerID)
	h.logTransition(c, audit.EventTypeCallRejected, me, out, "call rejected")
	c.JSON(http.StatusOK, out)
}

// CancelCall withdraws the caller's own pending request.
func (h Handlers) CancelCall(c *gin.Context) {
	me, req, ok := h.callInput(c)
	if !ok {
		return
	}

	if err := h.Calls.CancelOutgoingRequest(c.Request.Context(), me, req.PeerID); err != nil {
		h.renderCallError(c, err)
		return
	}
	h.releaseDialSlot(c, me)
	if h.Audit != nil {
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.LogCallTransition(c.Request.Context(), audit.EventTypeCallCancelled, me, role, c.ClientIP(), "", "", "", "call cancelled")
	}
	c.Status(http.StatusNoContent)
}

// LastCall returns the most recent request between the caller and a peer.
func (h Handlers) LastCall(c *gin.Context) {
	me, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	peer := c.Param("peer_id")
	if peer == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "peer_id required"})
		return
	}

	out, found, err := h.Calls.LastRequestBetween(c.Request.Context(), me, peer)
	if err != nil {
		h.renderCallError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no call history"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func (h Handlers) callInput(c *gin.Context) (me string, req callPeerRequest, ok bool) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return "", callPeerRequest{}, false
	}
	me, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", callPeerRequest{}, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return "", callPeerRequest{}, false
	}
	if req.PeerID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "peer_id required"})
		return "", callPeerRequest{}, false
	}
	return me, req, true
}

func (h Handlers) renderCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, callrequest.ErrSelfPair), errors.Is(err, callrequest.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("call request op failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call request failed"})
	}
}

func (h Handlers) logTransition(c *gin.Context, typ audit.EventType, actor string, req callrequest.CallRequest, msg string) {
	if h.Audit == nil {
		return
	}
	role, _ := auth.Role(c.Request.Context())
	// Best-effort; audit must never fail the call flow.
	if err := h.Audit.LogCallTransition(c.Request.Context(), typ, actor, role, c.ClientIP(), req.PairA, req.PairB, req.RoomID, msg); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

func (h Handlers) releaseDialSlot(c *gin.Context, initiator string) {
	if h.Redis == nil || h.DialCap <= 0 {
		return
	}
	if err := utils.ReleaseDialCap(c.Request.Context(), h.Redis, "dialcap:"+initiator); err != nil {
		logger.FromGin(c).Warn("dial cap release failed", "err", err)
	}
}

func (h Handlers) dialTTL() time.Duration {
	if h.DialTTL > 0 {
		return h.DialTTL
	}
	return 2 * time.Minute
}
