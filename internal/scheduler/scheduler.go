package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/channelsync"
	"github.com/tubemetrics/freshness/pkg/config"
)

// Syncer runs channel syncs
type Syncer interface {
	TrackedChannels(ctx context.Context) ([]string, error)
	SyncChannels(ctx context.Context, req channelsync.Request) (*channelsync.Result, error)
}

// Summary is the outcome of one background sync of all channels
type Summary struct {
	RunID     string                     `json:"runId,omitempty"`
	Channels  int                        `json:"channels"`
	Succeeded int                        `json:"succeeded"`
	Failed    int                        `json:"failed"`
	Errors    []channelsync.ChannelError `json:"errors"`
}

// Scheduler syncs every tracked channel, on demand or once a day
type Scheduler struct {
	syncer           Syncer
	videosPerChannel int
	hour             int
	minute           int
	runTimeout       time.Duration
	clock            clockwork.Clock
	logger           *zap.Logger
}

// New creates a scheduler from sync settings
func New(syncer Syncer, cfg *config.SyncConfig, clock clockwork.Clock, logger *zap.Logger) (*Scheduler, error) {
	hour, minute, err := config.ParseDailyAt(cfg.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("invalid daily sync time: %w", err)
	}
	return &Scheduler{
		syncer:           syncer,
		videosPerChannel: cfg.DefaultVideosPerChannel,
		hour:             hour,
		minute:           minute,
		runTimeout:       cfg.RunTimeout,
		clock:            clock,
		logger:           logger.With(zap.String("component", "scheduler")),
	}, nil
}

// BackgroundSyncAllChannels runs an incremental sync of every tracked
// channel. Failing channels are counted and listed; they do not stop the
// others.
func (s *Scheduler) BackgroundSyncAllChannels(ctx context.Context) (*Summary, error) {
	ids, err := s.syncer.TrackedChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked channels: %w", err)
	}

	summary := &Summary{Channels: len(ids), Errors: []channelsync.ChannelError{}}
	if len(ids) == 0 {
		s.logger.Info("No tracked channels to sync")
		return summary, nil
	}

	limit := s.videosPerChannel
	res, err := s.syncer.SyncChannels(ctx, channelsync.Request{
		ChannelIDs:       ids,
		VideosPerChannel: &limit,
		ForceRefresh:     true,
	})
	if err != nil {
		return nil, err
	}

	summary.RunID = res.RunID
	summary.Succeeded = len(res.FromAPI) + len(res.FromCache)
	summary.Failed = len(res.Errors)
	summary.Errors = res.Errors

	s.logger.Info("Background sync finished",
		zap.String("run_id", res.RunID),
		zap.Int("channels", summary.Channels),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// Run syncs immediately, then once a day at the configured time until ctx
// is done. The schedule lives in memory only and restarts with the process.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting daily sync", zap.String("at", fmt.Sprintf("%02d:%02d", s.hour, s.minute)))

	for {
		s.tick(ctx)

		next := nextRun(s.clock.Now(), s.hour, s.minute)
		s.logger.Debug("Next sync scheduled", zap.Time("at", next))

		timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Daily sync stopped")
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}

// tick runs one sync; failures are logged only
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	if _, err := s.BackgroundSyncAllChannels(runCtx); err != nil {
		s.logger.Error("Background sync failed", zap.Error(err))
	}
}

// nextRun returns the first hour:minute strictly after now, in now's location
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
