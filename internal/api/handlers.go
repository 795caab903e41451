package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tgwatch/internal/cache"
	"tgwatch/internal/delivery"
	"tgwatch/internal/fetcher"
	"tgwatch/internal/model"
	"tgwatch/internal/storage"
)

const recentChecks = 10

// Store is the subset of storage the API reads.
type Store interface {
	GetSubscriber(ctx context.Context, id int64) (*model.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)
	ListChecks(ctx context.Context, subscriberID int64, limit int) ([]model.CheckRecord, error)
	Stats(ctx context.Context, subscriberID int64) (storage.SubscriberStats, error)
}

type RequestCounter interface {
	Snapshot() fetcher.RequestSnapshot
}

type CacheStats interface {
	Stats() cache.Stats
}

type QueueStats interface {
	Stats() delivery.Stats
}

// Handler handles HTTP requests for the stats API.
type Handler struct {
	store    Store
	requests RequestCounter
	cache    CacheStats
	queue    QueueStats
	started  time.Time
	now      func() time.Time
}

// NewHandler creates a Handler. Nil sources are left out of the responses.
func NewHandler(store Store, r RequestCounter, c CacheStats, q QueueStats) *Handler {
	return &Handler{
		store:    store,
		requests: r,
		cache:    c,
		queue:    q,
		started:  time.Now(),
		now:      time.Now,
	}
}

// HealthCheck handles the health check endpoint.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"uptime":    h.now().Sub(h.started).Round(time.Second).String(),
	})
}

type cacheResponse struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hit_rate"`
}

// GetStats handles the process statistics endpoint.
func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.requests != nil {
		stats["requests"] = h.requests.Snapshot()
	}
	if h.cache != nil {
		s := h.cache.Stats()
		stats["cache"] = cacheResponse{
			Hits:      s.Hits,
			Misses:    s.Misses,
			Evictions: s.Evictions,
			Size:      s.Size,
			HitRate:   s.HitRate(),
		}
	}
	if h.queue != nil {
		stats["queue"] = h.queue.Stats()
	}
	if h.store != nil {
		if subs, err := h.store.ListSubscribers(c.Request.Context()); err == nil {
			stats["subscribers"] = len(subs)
		}
	}
	c.JSON(http.StatusOK, stats)
}

type checkResponse struct {
	ChannelsTotal   int       `json:"channels_total"`
	ChannelsChecked int       `json:"channels_checked"`
	Relevant        int       `json:"relevant"`
	Enqueued        int       `json:"enqueued"`
	CheckedAt       time.Time `json:"checked_at"`
}

type subscriberResponse struct {
	ID          int64           `json:"id"`
	Username    string          `json:"username,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastCheckAt *time.Time      `json:"last_check_at,omitempty"`
	Channels    int             `json:"channels"`
	Keywords    int             `json:"keywords"`
	Negative    int             `json:"negative"`
	Delivered   int             `json:"delivered"`
	Checks      int             `json:"checks"`
	Recent      []checkResponse `json:"recent_checks"`
}

// GetSubscriber handles the per-subscriber statistics endpoint.
func (h *Handler) GetSubscriber(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscriber id"})
		return
	}
	ctx := c.Request.Context()

	sub, err := h.store.GetSubscriber(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscriber not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	st, err := h.store.Stats(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	checks, err := h.store.ListChecks(ctx, id, recentChecks)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := subscriberResponse{
		ID:          sub.ID,
		Username:    sub.Username,
		CreatedAt:   sub.CreatedAt,
		LastCheckAt: sub.LastCheckAt,
		Channels:    st.Channels,
		Keywords:    st.Keywords,
		Negative:    st.Negative,
		Delivered:   st.Delivered,
		Checks:      st.Checks,
		Recent:      make([]checkResponse, 0, len(checks)),
	}
	for _, ch := range checks {
		resp.Recent = append(resp.Recent, checkResponse{
			ChannelsTotal:   ch.ChannelsTotal,
			ChannelsChecked: ch.ChannelsChecked,
			Relevant:        ch.Relevant,
			Enqueued:        ch.Enqueued,
			CheckedAt:       ch.CheckedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}
