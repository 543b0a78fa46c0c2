// Package monitor polls the control folder of the main location and starts a
// conversion job when a trigger artifact appears.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-doc-converter/internal/sasurl"
	"github.com/tendant/simple-doc-converter/internal/storage"
	"github.com/tendant/simple-doc-converter/internal/trigger"
)

// Handler runs one conversion job. The monitor blocks until it returns;
// there is never more than one active job.
type Handler interface {
	RunJob(ctx context.Context, jc trigger.JobConfig) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, jc trigger.JobConfig) error

func (f HandlerFunc) RunJob(ctx context.Context, jc trigger.JobConfig) error { return f(ctx, jc) }

// Options tunes the poll loop. Zero values pick the defaults below.
type Options struct {
	PollInterval time.Duration // default 2m
	TriggerName  string        // exact artifact name, default "start_conversion_1234.txt"
	TriggerExt   string        // fallback extension, default ".txt"
	Logger       *slog.Logger
}

type Monitor struct {
	store   storage.Store
	main    sasurl.Location
	handler Handler
	opts    Options
	log     *slog.Logger
}

func New(store storage.Store, main sasurl.Location, handler Handler, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Minute
	}
	if opts.TriggerName == "" {
		opts.TriggerName = "start_conversion_1234.txt"
	}
	if opts.TriggerExt == "" {
		opts.TriggerExt = ".txt"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{store: store, main: main, handler: handler, opts: opts, log: log}
}

// Run polls until ctx is canceled. The first check happens immediately,
// then once per interval. Poll failures are logged and polling continues;
// job failures are the handler's to report and never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor started",
		"location", m.main.Redacted(),
		"interval", m.opts.PollInterval,
		"trigger", m.opts.TriggerName,
		"trigger_ext", m.opts.TriggerExt)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := m.checkOnce(ctx); err != nil {
			if ctx.Err() != nil {
				m.log.Info("monitor stopping")
				return ctx.Err()
			}
			m.log.Warn("poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkOnce is one pass of the poll loop: find a trigger, load its job
// configuration, delete the artifact, run the job. The artifact is deleted
// only after a JobConfig was built, and before the job starts, so a crash
// mid-job cannot re-fire the same trigger.
func (m *Monitor) checkOnce(ctx context.Context) error {
	objs, err := m.store.List(ctx, m.main, storage.FolderConfig)
	if err != nil {
		return fmt.Errorf("list control folder: %w", err)
	}

	found, ok := findTrigger(objs, m.opts.TriggerName, m.opts.TriggerExt)
	if !ok {
		m.log.Debug("no trigger present")
		return nil
	}
	m.log.Info("trigger found", "name", found.Name, "size", found.Size)

	content, err := m.store.Download(ctx, m.main, storage.FolderConfig, found.Name)
	if err != nil {
		return fmt.Errorf("download trigger %s: %w", found.Name, err)
	}

	jc, err := trigger.Load(m.main, string(content))
	if err != nil {
		// The artifact stays in place so the operator can inspect and fix it.
		m.log.Error("trigger rejected", "name", found.Name, "err", err)
		return nil
	}
	jc.TriggerName = found.Name

	for _, loc := range []sasurl.Location{jc.Source, jc.Dest} {
		if err := loc.ValidateSAS(); err != nil {
			m.log.Warn("sas token looks incomplete", "err", err)
		}
	}

	if err := m.store.Delete(ctx, m.main, storage.FolderConfig, found.Name); err != nil {
		m.log.Warn("delete trigger failed, job runs anyway", "name", found.Name, "err", err)
	}

	m.log.Info("job starting", "trigger", found.Name, "source", jc.Source.Redacted(), "dest", jc.Dest.Redacted())
	if err := m.handler.RunJob(ctx, jc); err != nil {
		m.log.Error("job failed", "trigger", found.Name, "err", err)
		return nil
	}
	m.log.Info("job finished", "trigger", found.Name)
	return nil
}

// findTrigger prefers the exact artifact name; when absent, the first object
// carrying the fallback extension wins.
func findTrigger(objs []storage.ObjectInfo, name, ext string) (storage.ObjectInfo, bool) {
	for _, o := range objs {
		if o.Name == name {
			return o, true
		}
	}
	for _, o := range objs {
		if trigger.Matches(o.Name, name, ext) {
			return o, true
		}
	}
	return storage.ObjectInfo{}, false
}
