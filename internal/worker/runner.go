package worker

import (
	"context"
	"fmt"
	"voxrun/internal/cursor"
	"voxrun/pkg/logger"
	"voxrun/pkg/model"

	"go.uber.org/zap"
)

// UpdateSource delivers pending updates newer than a cursor
type UpdateSource interface {
	FetchUpdates(ctx context.Context, after int64) ([]model.Update, error)
}

type UpdateProcessor interface {
	Process(ctx context.Context, update model.Update) Outcome
}

// Report summarizes one cycle
type Report struct {
	Prior    int64
	Next     int64
	Updates  int
	Outcomes map[Outcome]int
}

// Runner drives a single poll-process-commit cycle
type Runner struct {
	store     cursor.Store
	source    UpdateSource
	processor UpdateProcessor
}

func NewRunner(store cursor.Store, source UpdateSource, processor UpdateProcessor) *Runner {
	return &Runner{
		store:     store,
		source:    source,
		processor: processor,
	}
}

// RunOnce fetches the updates after the stored cursor, processes them in
// order and stores the highest identifier seen. The cursor is left alone
// when the fetch fails, when there is nothing to do and when ctx is
// cancelled before the batch is finished; the next run then starts from
// the same point.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	prior := r.store.Read(ctx)
	report := Report{
		Prior:    prior,
		Next:     prior,
		Outcomes: make(map[Outcome]int),
	}

	logger.Info("Checking for new updates", zap.Int64("after", prior))

	updates, err := r.source.FetchUpdates(ctx, prior)
	if err != nil {
		logger.Error("Failed to fetch updates", zap.Error(err))
		return report, fmt.Errorf("fetch updates: %w", err)
	}

	if len(updates) == 0 {
		logger.Info("No new updates")
		return report, nil
	}

	report.Updates = len(updates)
	logger.Info("Processing updates", zap.Int("count", len(updates)))

	for i, update := range updates {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run interrupted, cursor not advanced",
				zap.Int64("cursor", prior),
				zap.Int("processed", i))
			return report, err
		}

		outcome := r.processor.Process(ctx, update)
		report.Outcomes[outcome]++
	}

	// a reply may have failed because of cancellation, so treat it as unfinished
	if err := ctx.Err(); err != nil {
		logger.Warn("Run interrupted, cursor not advanced", zap.Int64("cursor", prior))
		return report, err
	}

	maxSeen := model.MaxID(prior, updates)

	if err := r.store.Write(ctx, maxSeen); err != nil {
		logger.Error("Failed to persist cursor", zap.Int64("cursor", maxSeen), zap.Error(err))
		return report, fmt.Errorf("write cursor: %w", err)
	}

	report.Next = maxSeen

	logger.Info("Cycle complete",
		zap.Int64("cursor", maxSeen),
		zap.Int("transcribed", report.Outcomes[OutcomeTranscribed]),
		zap.Int("failed", report.Outcomes[OutcomeFailed]+report.Outcomes[OutcomeResolveFailed]+report.Outcomes[OutcomeDownloadFailed]),
		zap.Int("skipped", report.Outcomes[OutcomeSkipped]))

	return report, nil
}
