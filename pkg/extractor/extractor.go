package extractor

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"tweetpull/pkg/checkpoint"
	"tweetpull/pkg/config"
	"tweetpull/pkg/duration"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/ratelimit"
	"tweetpull/pkg/record"
	"tweetpull/pkg/sink"
	"tweetpull/pkg/source"
	"tweetpull/pkg/walker"
)

// OutputExt is the required extension of the output path
const OutputExt = ".parquet"

// Request describes one run
type Request struct {
	Handle string
	Output string
	// Duration is a window expression such as "7 days"; empty uses the
	// configured default
	Duration string
	Resume   bool
}

// Result summarizes a completed run
type Result struct {
	RunID   string
	Account *source.Account
	Cutoff  time.Time
	// Records is the number of rows in the output file
	Records int
	// Resumed is the number of rows carried over from an interrupted run
	Resumed int
	State   walker.State
}

// Progress receives run updates for display
type Progress interface {
	Start(handle string, cutoff time.Time, resumed int)
	Update(total int, latest time.Time)
	Complete(total int, state string)
}

// Extractor orchestrates extraction runs against one tweet source
type Extractor struct {
	source   source.TweetSource
	config   *config.Config
	logger   logger.Logger
	clock    ratelimit.Clock
	progress Progress
	newRunID func() string
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithClock substitutes the time source used for the cutoff and for pacing
func WithClock(c ratelimit.Clock) Option {
	return func(e *Extractor) { e.clock = c }
}

// WithProgress attaches a progress display
func WithProgress(p Progress) Option {
	return func(e *Extractor) { e.progress = p }
}

// New creates an Extractor
func New(cfg *config.Config, src source.TweetSource, opts ...Option) *Extractor {
	e := &Extractor{
		source:   src,
		config:   cfg,
		logger:   logger.NewNopLogger(),
		clock:    ratelimit.SystemClock(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NormalizeHandle trims whitespace and a leading @
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// Run performs one extraction. On failure or cancellation the output file is
// not created and the last checkpoint is left in place.
func (e *Extractor) Run(ctx context.Context, req Request) (*Result, error) {
	handle := NormalizeHandle(req.Handle)
	if handle == "" {
		return nil, errs.New(errs.KindConfig, "account handle is required")
	}
	if !strings.HasSuffix(strings.ToLower(req.Output), OutputExt) {
		return nil, errs.Newf(errs.KindConfig, "output path %q must end with %s", req.Output, OutputExt)
	}

	expr := req.Duration
	if strings.TrimSpace(expr) == "" {
		expr = e.config.Extraction.DefaultDuration
	}
	cutoff, err := duration.Resolve(e.clock.Now(), expr)
	if err != nil {
		return nil, err
	}

	runID := e.newRunID()
	log := e.logger.WithFields(map[string]interface{}{
		"run_id":  runID,
		"account": handle,
	})
	log.InfoWithFields("Starting extraction", map[string]interface{}{
		"output":   req.Output,
		"duration": expr,
		"cutoff":   cutoff,
		"resume":   req.Resume,
	})

	store := checkpoint.NewStore(req.Output, log)
	cp := e.loadCheckpoint(store, handle, req.Resume, log)

	out, cp, err := e.openSink(req.Output, handle, runID, cutoff, cp, store, log)
	if err != nil {
		return nil, err
	}

	gov := ratelimit.New(ratelimit.SettingsFromConfig(e.config.RateLimit),
		ratelimit.WithClock(e.clock),
		ratelimit.WithLogger(log.WithField("component", "governor")),
	)

	opts := walker.Options{
		Handle: handle,
		Cutoff: cutoff,
		Record: record.Options{
			OmitEngagement: !e.config.Output.IncludeEngagementMetrics,
			OmitMedia:      !e.config.Output.IncludeMediaInfo,
		},
		Logger: log.WithField("component", "walker"),
	}
	if cp != nil {
		opts.ResumeAfter = cp.LastID
	}
	w := walker.New(e.source, gov, opts)
	logger.LogComponentStart(log, "walker", map[string]interface{}{
		"resume_after": opts.ResumeAfter,
		"batch_size":   e.config.Output.BatchSize,
	})

	result := &Result{RunID: runID, Cutoff: cutoff, Resumed: out.Count()}
	if e.progress != nil {
		e.progress.Start(handle, cutoff, result.Resumed)
	}

	if err := e.drain(ctx, w, out); err != nil {
		out.Abort()
		result.Account = w.Account()
		result.State = w.State()
		result.Records = out.Count()
		logger.LogComponentStop(log, "walker", w.State().String())
		e.logFailure(log, err, out.Count())
		if e.progress != nil {
			e.progress.Complete(out.Count(), walker.Failed.String())
		}
		return result, err
	}

	if err := out.Finalize(); err != nil {
		out.Abort()
		log.WithError(err).Error("Failed to publish output")
		return result, err
	}
	if err := store.Clear(); err != nil {
		log.WithError(err).Warn("Failed to remove checkpoint after a completed run")
	}

	result.Account = w.Account()
	result.State = w.State()
	result.Records = out.Count()
	logger.LogComponentStop(log, "walker", result.State.String())

	log.InfoWithFields("Extraction complete", map[string]interface{}{
		"records": result.Records,
		"resumed": result.Resumed,
		"state":   result.State.String(),
		"pages":   w.Stats().Pages,
	})
	if e.progress != nil {
		e.progress.Complete(result.Records, result.State.String())
	}
	return result, nil
}

func (e *Extractor) drain(ctx context.Context, w *walker.Walker, out *sink.Sink) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := w.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := out.Accept(rec); err != nil {
			return err
		}
		if e.progress != nil {
			e.progress.Update(out.Count()+out.Pending(), rec.CreatedAt)
		}
	}
}

// loadCheckpoint returns the checkpoint to resume from, or nil. Unusable
// checkpoints are removed.
func (e *Extractor) loadCheckpoint(store *checkpoint.Store, handle string, resume bool, log logger.Logger) *checkpoint.Checkpoint {
	if !resume {
		// the first flush overwrites it, so a run that fails to resolve
		// the account leaves the previous run resumable
		if store.Exists() {
			log.WarnWithFields("Discarding checkpoint from a previous run, use --resume to continue it", map[string]interface{}{
				"path": store.Path(),
			})
		}
		return nil
	}

	cp, err := store.Load()
	if err != nil {
		// already logged by the store
		e.clear(store, log)
		return nil
	}
	if cp == nil {
		log.Info("No checkpoint found, starting from the newest post")
		return nil
	}
	if cp.Account != "" && !strings.EqualFold(cp.Account, handle) {
		log.WarnWithFields("Checkpoint belongs to another account, starting fresh", map[string]interface{}{
			"checkpoint_account": cp.Account,
		})
		e.clear(store, log)
		return nil
	}
	return cp
}

// openSink opens the output, falling back to a fresh start when the parts on
// disk do not match the checkpoint
func (e *Extractor) openSink(output, handle, runID string, cutoff time.Time, cp *checkpoint.Checkpoint, store *checkpoint.Store, log logger.Logger) (*sink.Sink, *checkpoint.Checkpoint, error) {
	opts := sink.Options{
		BatchSize:     e.config.Output.BatchSize,
		MaxBatchBytes: e.config.Output.MaxBatchBytes(),
		Compression:   e.config.Output.Compression,
		Account:       handle,
		Resume:        cp,
		Metadata: map[string]string{
			"tweetpull.account": handle,
			"tweetpull.cutoff":  cutoff.Format(time.RFC3339),
			"tweetpull.run_id":  runID,
			"tweetpull.version": logger.Version,
		},
		Logger: log.WithField("component", "sink"),
	}

	out, err := sink.Open(output, opts, store)
	if err == nil || cp == nil || errs.KindOf(err) != errs.KindCorruptCheckpoint {
		return out, cp, err
	}

	log.WithError(err).Warn("Checkpoint does not match the saved batches, starting fresh")
	e.clear(store, log)
	opts.Resume = nil
	out, err = sink.Open(output, opts, store)
	return out, nil, err
}

func (e *Extractor) clear(store *checkpoint.Store, log logger.Logger) {
	if err := store.Clear(); err != nil {
		log.WithError(err).Warn("Failed to remove checkpoint")
	}
}

func (e *Extractor) logFailure(log logger.Logger, err error, persisted int) {
	fields := map[string]interface{}{
		"persisted": persisted,
		"kind":      string(errs.KindOf(err)),
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.InfoWithFields("Extraction interrupted, progress kept for --resume", fields)
		return
	}
	log.WithError(err).ErrorWithFields("Extraction failed", fields)
}
