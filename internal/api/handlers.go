package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tubemetrics/freshness/internal/analytics"
	"github.com/tubemetrics/freshness/internal/channelsync"
	"github.com/tubemetrics/freshness/internal/history"
	"github.com/tubemetrics/freshness/internal/models"
	"github.com/tubemetrics/freshness/internal/youtube"
)

const (
	defaultSearchResults = 25
	maxListLimit         = 500
)

// SyncRequest is the body of a manual sync
type SyncRequest struct {
	ChannelIDs       []string `json:"channelIds"`
	VideosPerChannel *int     `json:"videosPerChannel"`
	FullSync         bool     `json:"fullSync"`
	ForceRefresh     bool     `json:"forceRefresh"`
}

// TrackRequest is the body of a channel registration
type TrackRequest struct {
	ChannelID string `json:"channelId"`
	OwnerID   string `json:"ownerId"`
}

// SearchResponse is a search result with its freshness
type SearchResponse struct {
	Items         interface{} `json:"items"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	Stale         bool        `json:"stale"`
	StoredAt      time.Time   `json:"storedAt"`
	Warning       string      `json:"warning,omitempty"`
}

// cronSync runs the background sync of every tracked channel and reports
// the summary once it completes. The sync outlives a disconnecting caller.
func (r *Router) cronSync(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	if r.opts.CronTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CronTimeout)
		defer cancel()
	}

	summary, err := r.deps.Background.BackgroundSyncAllChannels(ctx)
	if err != nil {
		respondError(c, r.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (r *Router) manualSync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, r.logger, NewError(http.StatusBadRequest, "invalid request body: "+err.Error()))
		return
	}

	if req.FullSync {
		if req.VideosPerChannel != nil {
			respondError(c, r.logger, &channelsync.ValidationError{
				Field:   "videosPerChannel",
				Message: "must be omitted for a full sync",
			})
			return
		}
		res, err := r.deps.Syncer.FullSync(c.Request.Context(), req.ChannelIDs...)
		if err != nil {
			respondError(c, r.logger, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	res, err := r.deps.Syncer.SyncChannels(c.Request.Context(), channelsync.Request{
		ChannelIDs:       req.ChannelIDs,
		VideosPerChannel: req.VideosPerChannel,
		ForceRefresh:     req.ForceRefresh,
	})
	if err != nil {
		respondError(c, r.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) trackChannel(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, r.logger, NewError(http.StatusBadRequest, "invalid request body: "+err.Error()))
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = r.opts.OwnerID
	}
	if err := r.deps.Syncer.TrackChannel(c.Request.Context(), req.ChannelID, req.OwnerID); err != nil {
		respondError(c, r.logger, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (r *Router) syncStatus(c *gin.Context) {
	status, err := r.deps.Syncer.ChannelSyncStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, r.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (r *Router) storedVideos(c *gin.Context) {
	limit, err := queryInt(c, "limit", r.opts.DefaultVideosPerChannel, 1, maxListLimit)
	if err != nil {
		respondError(c, r.logger, err)
		return
	}

	id := c.Param("id")
	videos, err := r.deps.Syncer.StoredVideos(c.Request.Context(), []string{id}, limit)
	if err != nil {
		respondError(c, r.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channelId": id,
		"count":     len(videos),
		"videos":    videos,
	})
}

// outliers scores every stored video of the channel against the others
func (r *Router) outliers(c *gin.Context) {
	id := c.Param("id")
	videos, err := r.deps.Syncer.StoredVideos(c.Request.Context(), []string{id}, 0)
	if err != nil {
		respondError(c, r.logger, err)
		return
	}

	scored := make([]analytics.ScoredVideo, 0, len(videos))
	for _, v := range videos {
		scored = append(scored, analytics.ScoredVideo{ID: v.ExternalID, Views: v.ViewCount})
	}
	c.JSON(http.StatusOK, gin.H{
		"channelId": id,
		"outliers":  analytics.ScoreChannel(scored),
	})
}

func (r *Router) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		respondError(c, r.logger, NewError(http.StatusBadRequest, "q is required"))
		return
	}
	maxResults, err := queryInt(c, "maxResults", defaultSearchResults, 1, youtube.MaxPageSize)
	if err != nil {
		respondError(c, r.logger, err)
		return
	}

	res, err := r.deps.Search.Search(c.Request.Context(), youtube.Params{
		Part:       []string{"snippet"},
		Q:          q,
		Type:       c.DefaultQuery("type", "video"),
		Order:      c.Query("order"),
		ChannelID:  c.Query("channelId"),
		MaxResults: maxResults,
		PageToken:  c.Query("pageToken"),
	})
	if err != nil {
		respondError(c, r.logger, err)
		return
	}

	if res.Warning != "" {
		c.Header("Warning", `110 - "`+res.Warning+`"`)
	}
	c.JSON(http.StatusOK, SearchResponse{
		Items:         res.Response.Items,
		NextPageToken: res.Response.NextPageToken,
		Stale:         res.Stale,
		StoredAt:      res.StoredAt,
		Warning:       res.Warning,
	})
}

func (r *Router) trend(c *gin.Context) {
	kind := models.EntityKind(c.Param("kind"))
	metric, err := history.ParseMetric(kind, c.Query("metric"))
	if err != nil {
		respondError(c, r.logger, NewError(http.StatusBadRequest, err.Error()))
		return
	}

	owner := c.DefaultQuery("ownerId", r.opts.OwnerID)
	res, err := r.deps.Trends.Trend(c.Request.Context(), owner, c.Param("id"), metric)
	if err != nil {
		respondError(c, r.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entityId": c.Param("id"),
		"kind":     kind,
		"metric":   metric.Name(),
		"trend":    res,
	})
}

// queryInt reads an optional integer query parameter within [lo, hi]
func queryInt(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, NewError(http.StatusBadRequest, name+" must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
	}
	return n, nil
}
