package channelsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tubemetrics/freshness/internal/events"
	"github.com/tubemetrics/freshness/internal/models"
	"github.com/tubemetrics/freshness/pkg/config"
)

// Source reads channels and videos from the external API
type Source interface {
	ChannelInfo(ctx context.Context, channelID string, refresh bool) (*models.Channel, error)
	UploadedVideoIDs(ctx context.Context, playlistID, pageToken string, pageSize int, refresh bool) ([]string, string, error)
	VideoDetails(ctx context.Context, ids []string, refresh bool) ([]models.Video, error)
}

// ChannelStore persists tracked channels
type ChannelStore interface {
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	Upsert(ctx context.Context, channel *models.Channel) error
	Track(ctx context.Context, channelID, ownerID string) error
	ListTracked(ctx context.Context) ([]models.Channel, error)
}

// VideoStore persists videos by external id
type VideoStore interface {
	UpsertBatch(ctx context.Context, videos []models.Video) error
	ListByChannels(ctx context.Context, channelIDs []string, limit int) ([]models.Video, error)
	CountByChannel(ctx context.Context, channelID string) (int64, error)
}

// StateStore persists per-channel sync status
type StateStore interface {
	Get(ctx context.Context, channelID string) (*models.ChannelSyncState, error)
	Acquire(ctx context.Context, channelID string, status models.SyncStatus) (bool, error)
	Release(ctx context.Context, channelID string, mode models.SyncStatus, syncErr error, videoCount int64) error
	// ResetInterrupted fails busy rows last updated before the cutoff
	ResetInterrupted(ctx context.Context, before time.Time) (int64, error)
}

// Recorder stores daily metric snapshots
type Recorder interface {
	RecordVideoSnapshot(ctx context.Context, ownerID string, videos []models.Video) (bool, error)
	RecordChannelSnapshot(ctx context.Context, ownerID string, channel *models.Channel) (bool, error)
}

// Deps are the collaborators of an Orchestrator. Recorder and Events are
// optional.
type Deps struct {
	Source   Source
	Channels ChannelStore
	Videos   VideoStore
	States   StateStore
	Recorder Recorder
	Events   events.Publisher
}

// Options tune synchronization
type Options struct {
	Workers          int
	PageSize         int
	MaxFullSyncPages int
	// StoredFreshFor is how long stored videos answer non-forced requests
	StoredFreshFor time.Duration
	// MaxSyncDuration bounds each channel sync. Busy rows older than this
	// are reset by Recover.
	MaxSyncDuration time.Duration
	OwnerID         string
}

// OptionsFromConfig converts sync settings into Options
func OptionsFromConfig(cfg *config.SyncConfig) Options {
	return Options{
		Workers:          cfg.Workers,
		PageSize:         cfg.FullSyncPageSize,
		MaxFullSyncPages: cfg.MaxFullSyncPages,
		StoredFreshFor:   cfg.StoredFreshFor,
		MaxSyncDuration:  cfg.MaxSyncDuration,
		OwnerID:          cfg.OwnerID,
	}
}

// Request is an incremental sync of one or more channels
type Request struct {
	ChannelIDs []string
	// VideosPerChannel bounds how many of the newest videos are fetched.
	// Nil means all videos, which is only allowed for a single channel.
	VideosPerChannel *int
	ForceRefresh     bool
}

// Result is the outcome of SyncChannels. FromCache and FromAPI list channel
// ids by where their videos came from.
type Result struct {
	RunID     string         `json:"runId"`
	Videos    []models.Video `json:"videos"`
	FromCache []string       `json:"fromCache"`
	FromAPI   []string       `json:"fromApi"`
	Errors    []ChannelError `json:"errors"`
}

// FullSyncResult is the outcome of a full backfill
type FullSyncResult struct {
	RunID      string `json:"runId"`
	ChannelID  string `json:"channelId"`
	Success    bool   `json:"success"`
	VideoCount int    `json:"videoCount"`
	Error      string `json:"error,omitempty"`
}

// Orchestrator synchronizes channel videos into storage. At most one sync
// runs per channel; different channels run concurrently on a bounded pool.
type Orchestrator struct {
	deps   Deps
	opts   Options
	clock  clockwork.Clock
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[string]models.SyncStatus
}

// New creates an orchestrator
func New(deps Deps, opts Options, clock clockwork.Clock, logger *zap.Logger) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PageSize < 1 || opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	if opts.MaxSyncDuration <= 0 {
		opts.MaxSyncDuration = defaultMaxSyncDuration
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		clock:    clock,
		logger:   logger,
		inFlight: make(map[string]models.SyncStatus),
	}
}

// SyncChannels runs an incremental sync of every requested channel. A
// failing channel is reported in Result.Errors and does not stop the rest.
func (o *Orchestrator) SyncChannels(ctx context.Context, req Request) (*Result, error) {
	ids, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	limit := 0
	status := models.SyncStatusFullSyncing
	if req.VideosPerChannel != nil {
		limit = *req.VideosPerChannel
		status = models.SyncStatusSyncing
	}

	runID := uuid.NewString()
	outcomes := make([]channelOutcome, len(ids))

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = o.syncChannel(ctx, runID, id, status, limit, req.ForceRefresh)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		RunID:     runID,
		Videos:    []models.Video{},
		FromCache: []string{},
		FromAPI:   []string{},
		Errors:    []ChannelError{},
	}
	for i, out := range outcomes {
		switch {
		case out.err != nil:
			res.Errors = append(res.Errors, ChannelError{
				ChannelID:  ids[i],
				Message:    out.err.Error(),
				InProgress: out.inProgress,
			})
		case out.fromCache:
			res.FromCache = append(res.FromCache, ids[i])
			res.Videos = append(res.Videos, out.videos...)
		default:
			res.FromAPI = append(res.FromAPI, ids[i])
			res.Videos = append(res.Videos, out.videos...)
		}
	}

	o.logger.Info("Channel sync finished",
		zap.String("run_id", runID),
		zap.Int("channels", len(ids)),
		zap.Int("from_cache", len(res.FromCache)),
		zap.Int("from_api", len(res.FromAPI)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("videos", len(res.Videos)),
	)
	return res, nil
}

// FullSync backfills every video of exactly one channel. Any other number
// of channel ids is rejected before contacting the API. A sync failure is
// reported in the result; only validation and ErrSyncInProgress are
// returned as errors.
func (o *Orchestrator) FullSync(ctx context.Context, channelIDs ...string) (*FullSyncResult, error) {
	if len(channelIDs) != 1 {
		return nil, &ValidationError{Field: "channelIds", Message: "full sync accepts exactly one channel"}
	}
	id := channelIDs[0]
	if id == "" {
		return nil, &ValidationError{Field: "channelIds", Message: "channel id is empty"}
	}

	runID := uuid.NewString()
	out := o.syncChannel(ctx, runID, id, models.SyncStatusFullSyncing, 0, true)
	if out.inProgress {
		return nil, out.err
	}

	res := &FullSyncResult{
		RunID:      runID,
		ChannelID:  id,
		Success:    out.err == nil,
		VideoCount: len(out.videos),
	}
	if out.err != nil {
		res.Error = out.err.Error()
	}
	return res, nil
}

// Recover resets channels left mid-sync by a dead process. Only rows busy
// for longer than MaxSyncDuration are touched, so syncs still running in
// another process keep their status.
func (o *Orchestrator) Recover(ctx context.Context) (int64, error) {
	n, err := o.deps.States.ResetInterrupted(ctx, o.clock.Now().Add(-o.opts.MaxSyncDuration))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.logger.Warn("Reset interrupted channel syncs", zap.Int64("channels", n))
	}
	return n, nil
}

func validateRequest(req Request) ([]string, error) {
	if len(req.ChannelIDs) == 0 {
		return nil, &ValidationError{Field: "channelIds", Message: "at least one channel is required"}
	}

	seen := make(map[string]bool, len(req.ChannelIDs))
	ids := make([]string, 0, len(req.ChannelIDs))
	for _, id := range req.ChannelIDs {
		if id == "" {
			return nil, &ValidationError{Field: "channelIds", Message: "channel id is empty"}
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if req.VideosPerChannel != nil && *req.VideosPerChannel <= 0 {
		return nil, &ValidationError{Field: "videosPerChannel", Message: "must be positive"}
	}
	if req.VideosPerChannel == nil && len(ids) > 1 {
		return nil, &ValidationError{
			Field:   "videosPerChannel",
			Message: "omitting it requests every video, which is a full sync and accepts exactly one channel",
		}
	}
	return ids, nil
}
