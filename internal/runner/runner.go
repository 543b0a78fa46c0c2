// Package runner coordinates one conversion job end to end: discover the
// work set, batch it, drive the pipeline, record failures, report status.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-doc-converter/internal/batch"
	"github.com/tendant/simple-doc-converter/internal/job"
	"github.com/tendant/simple-doc-converter/internal/ledger"
	"github.com/tendant/simple-doc-converter/internal/process"
	"github.com/tendant/simple-doc-converter/internal/sasurl"
	"github.com/tendant/simple-doc-converter/internal/storage"
	"github.com/tendant/simple-doc-converter/internal/trigger"
	"github.com/tendant/simple-doc-converter/pkg/schema"
)

// BatchProcessor runs one batch and returns one outcome per item, in input
// order. *pipeline.Pipeline is the production implementation.
type BatchProcessor interface {
	Run(ctx context.Context, src, dst sasurl.Location, items []job.WorkItem) []job.Outcome
}

// EventPublisher publishes job lifecycle events. *bus.Client satisfies it;
// a nil publisher disables events.
type EventPublisher interface {
	PublishJSON(subject string, v any) error
}

// Options tunes a Runner.
type Options struct {
	BatchSize      int           // documents per batch, default 1000
	BatchDelay     time.Duration // pause between batches, never after the last
	Events         EventPublisher
	StartedSubject string
	DoneSubject    string
	Logger         *slog.Logger
}

type Runner struct {
	store  storage.Store
	pipe   BatchProcessor
	ledger *ledger.Ledger
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

func New(store storage.Store, pipe BatchProcessor, led *ledger.Ledger, opts Options) *Runner {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1000
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.StartedSubject == "" {
		opts.StartedSubject = "documents.conversion.started"
	}
	if opts.DoneSubject == "" {
		opts.DoneSubject = "documents.conversion.done"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{store: store, pipe: pipe, ledger: led, opts: opts, log: log, now: time.Now}
}

// Result summarizes one finished job. Failures carries this run's ledger
// records so callers see them without re-reading the ledger file.
type Result struct {
	JobID       string
	Trigger     string
	Documents   int
	Unsupported int
	Batches     int
	Converted   int
	Copied      int
	Failed      int
	TotalBytes  int64
	ByKind      map[job.ErrorKind]int
	Failures    []ledger.Record
	Started     time.Time
	Elapsed     time.Duration
}

// RunJob executes a job described by jc. Per-item failures land in the
// ledger and the Result; only a failure that prevents the work set from
// being processed at all (listing the source) is returned as an error.
// A status log is uploaded to the main location's job_status folder on
// every path, including aborts.
func (r *Runner) RunJob(ctx context.Context, jc trigger.JobConfig) (*Result, error) {
	jobID := uuid.NewString()
	log := r.log.With("job_id", jobID, "trigger", jc.TriggerName)

	state := process.NewJob("bulk_conversion", jobID, jc.TriggerName)
	started := r.now()
	state.MarkRunning(started)

	res := &Result{
		JobID:   jobID,
		Trigger: jc.TriggerName,
		Started: started,
		ByKind:  make(map[job.ErrorKind]int),
	}

	objs, err := r.store.List(ctx, jc.Source, storage.FolderFiles)
	if err != nil {
		err = fmt.Errorf("list source documents: %w", err)
		state.MarkFailed(r.now(), err)
		res.Elapsed = r.now().Sub(started)
		log.Error("job aborted", "err", err)
		r.finish(ctx, jc, res, state, log)
		return nil, err
	}

	var items []job.WorkItem
	for _, o := range objs {
		format := job.FormatFromName(o.Name)
		if format == job.FormatUnsupported {
			res.Unsupported++
			log.Debug("skipping unsupported document", "name", o.Name)
			continue
		}
		items = append(items, job.WorkItem{Name: o.Name, Size: o.Size, Format: format})
	}
	res.Documents = len(items)
	res.Batches = batch.Count(len(items), r.opts.BatchSize)
	log.Info("work set discovered",
		"documents", res.Documents,
		"unsupported", res.Unsupported,
		"batches", res.Batches,
		"batch_size", r.opts.BatchSize)

	r.publish(r.opts.StartedSubject, schema.ConversionJobStarted{
		JobID:      jobID,
		Trigger:    jc.TriggerName,
		Source:     jc.Source.Redacted(),
		Dest:       jc.Dest.Redacted(),
		Documents:  res.Documents,
		Batches:    res.Batches,
		HappenedAt: r.now().Unix(),
	}, log)

	if res.Documents == 0 {
		log.Info("nothing to convert")
		state.MarkSucceeded(r.now())
		res.Elapsed = r.now().Sub(started)
		r.finish(ctx, jc, res, state, log)
		return res, nil
	}

	var interrupted error
	idx := 0
	for b := range batch.Plan(items, r.opts.BatchSize) {
		idx++
		blog := log.With("batch", idx)
		blog.Info("batch starting", "size", len(b))

		outcomes := r.pipe.Run(ctx, jc.Source, jc.Dest, b)

		var recs []ledger.Record
		var converted, copied, failed int
		for _, out := range outcomes {
			switch out.Status {
			case job.StatusConverted:
				converted++
				res.TotalBytes += out.OutputSize
			case job.StatusCopied:
				copied++
				res.TotalBytes += out.OutputSize
			case job.StatusFailed:
				failed++
				res.ByKind[out.ErrorKind]++
				recs = append(recs, ledger.Record{
					Timestamp: r.now(),
					Name:      out.Item.Name,
					Size:      out.Item.Size,
					Kind:      out.ErrorKind,
					Message:   out.Message,
					Attempts:  out.Attempt,
				})
			}
		}
		res.Converted += converted
		res.Copied += copied
		res.Failed += failed

		if len(recs) > 0 {
			res.Failures = append(res.Failures, recs...)
			if err := r.ledger.AppendAll(recs); err != nil {
				blog.Warn("recording failures in ledger failed", "err", err)
			}
		}
		blog.Info("batch complete", "converted", converted, "copied", copied, "failed", failed)

		if idx < res.Batches && r.opts.BatchDelay > 0 {
			select {
			case <-time.After(r.opts.BatchDelay):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil && idx < res.Batches {
			interrupted = fmt.Errorf("interrupted after %d/%d batches: %w", idx, res.Batches, ctx.Err())
			log.Warn("job interrupted", "completed_batches", idx, "total_batches", res.Batches)
			break
		}
	}

	res.Elapsed = r.now().Sub(started)
	if interrupted != nil {
		state.MarkFailed(r.now(), interrupted)
	} else {
		state.MarkSucceeded(r.now())
	}

	log.Info("job complete",
		"status", state.Status,
		"converted", res.Converted,
		"copied", res.Copied,
		"failed", res.Failed,
		"bytes_written", res.TotalBytes,
		"elapsed_ms", res.Elapsed.Milliseconds())
	if res.Failed > 0 {
		attrs := []any{"total", res.Failed}
		for _, kind := range sortedKinds(res.ByKind) {
			attrs = append(attrs, string(kind), res.ByKind[kind])
		}
		log.Warn("job had failures", attrs...)
	}

	r.finish(ctx, jc, res, state, log)
	return res, interrupted
}

// finish uploads the status log and publishes the completion event. Both are
// best-effort: a job that converted documents is not failed retroactively
// because reporting had a bad day. The upload survives a canceled job
// context; shutdown is exactly when the status log matters.
func (r *Runner) finish(ctx context.Context, jc trigger.JobConfig, res *Result, state *process.Job, log *slog.Logger) {
	name := "job_" + res.Started.Format("20060102_150405") + ".log"

	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := r.store.Upload(uploadCtx, jc.Main, storage.FolderStatus, name, []byte(statusLog(jc, res, state))); err != nil {
		log.Warn("status log upload failed", "name", name, "err", err)
	} else {
		log.Info("status log uploaded", "name", name)
	}

	kinds := make(map[string]int, len(res.ByKind))
	for k, v := range res.ByKind {
		kinds[string(k)] = v
	}
	r.publish(r.opts.DoneSubject, schema.ConversionJobDone{
		JobID:            res.JobID,
		Trigger:          res.Trigger,
		Status:           string(state.Status),
		Documents:        res.Documents,
		Converted:        res.Converted,
		Copied:           res.Copied,
		Failed:           res.Failed,
		TotalBytes:       res.TotalBytes,
		ProcessingTimeMs: res.Elapsed.Milliseconds(),
		ErrorKinds:       kinds,
		Error:            state.Error,
		HappenedAt:       r.now().Unix(),
	}, log)
}

func (r *Runner) publish(subject string, v any, log *slog.Logger) {
	if r.opts.Events == nil {
		return
	}
	if err := r.opts.Events.PublishJSON(subject, v); err != nil {
		log.Warn("publish event failed", "subject", subject, "err", err)
	}
}
