// Package pipeline runs one batch of work items through download, convert
// and upload with bounded concurrency.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tendant/simple-doc-converter/internal/convert"
	"github.com/tendant/simple-doc-converter/internal/job"
	"github.com/tendant/simple-doc-converter/internal/sasurl"
	"github.com/tendant/simple-doc-converter/internal/storage"
)

type Pipeline struct {
	store             storage.Store
	factory           convert.Factory
	maxWorkers        int
	minForConcurrency int
	log               *slog.Logger
}

// New builds a pipeline. maxWorkers caps the pool; batches smaller than
// minForConcurrency are processed sequentially because pool startup costs
// more than it saves on tiny batches.
func New(store storage.Store, factory convert.Factory, maxWorkers, minForConcurrency int, log *slog.Logger) *Pipeline {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if minForConcurrency < 1 {
		minForConcurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		store:             store,
		factory:           factory,
		maxWorkers:        maxWorkers,
		minForConcurrency: minForConcurrency,
		log:               log,
	}
}

// Run processes every item and returns exactly one outcome per item, in
// input order. Item failures are contained in their outcome; Run itself
// never fails. The pool is sized min(maxWorkers, len(items)) and each worker
// owns a private converter instance.
func (p *Pipeline) Run(ctx context.Context, src, dst sasurl.Location, items []job.WorkItem) []job.Outcome {
	outcomes := make([]job.Outcome, len(items))
	if len(items) == 0 {
		return outcomes
	}

	if len(items) < p.minForConcurrency {
		conv := p.factory.New()
		for i, item := range items {
			outcomes[i] = p.processOne(ctx, conv, src, dst, item)
		}
		return outcomes
	}

	type task struct {
		i    int
		item job.WorkItem
	}

	workers := min(p.maxWorkers, len(items))
	tasks := make(chan task)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv := p.factory.New()
			for t := range tasks {
				outcomes[t.i] = p.processOne(ctx, conv, src, dst, t.item)
			}
		}()
	}
	for i, item := range items {
		tasks <- task{i: i, item: item}
	}
	close(tasks)
	wg.Wait()

	return outcomes
}

func (p *Pipeline) processOne(ctx context.Context, conv convert.Converter, src, dst sasurl.Location, item job.WorkItem) (out job.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = job.Failed(item, job.KindProcessingError, fmt.Errorf("panic: %v", r))
			p.log.Error("document processing panicked", "name", item.Name, "panic", r)
		}
	}()

	data, err := p.store.Download(ctx, src, storage.FolderFiles, item.Name)
	if err != nil {
		p.log.Warn("download failed", "name", item.Name, "err", err)
		return job.Failed(item, job.KindDownloadFailed, err)
	}

	status := job.StatusCopied
	reason := ""
	output := data
	if item.Format.Passthrough() {
		reason = "stored verbatim"
	} else {
		output, err = conv.Convert(ctx, data, item.Format)
		if err != nil {
			p.log.Warn("conversion failed", "name", item.Name, "format", item.Format, "err", err)
			return job.Failed(item, job.KindConversionFailed, err)
		}
		status = job.StatusConverted
	}

	outName := job.OutputName(item.Name, item.Format)
	if err := p.store.Upload(ctx, dst, storage.FolderConverted, outName, output); err != nil {
		p.log.Warn("upload failed", "name", item.Name, "output", outName, "err", err)
		return job.Failed(item, job.KindUploadFailed, err)
	}

	p.log.Debug("document processed", "name", item.Name, "output", outName, "status", status)
	return job.Outcome{
		Item:       item,
		Status:     status,
		OutputName: outName,
		OutputSize: int64(len(output)),
		Reason:     reason,
		Attempt:    1,
	}
}
