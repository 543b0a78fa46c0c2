package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/tendant/simple-doc-converter/internal/job"
	"github.com/tendant/simple-doc-converter/internal/ledger"
	"github.com/tendant/simple-doc-converter/internal/process"
	"github.com/tendant/simple-doc-converter/internal/sasurl"
	"github.com/tendant/simple-doc-converter/internal/storage"
	"github.com/tendant/simple-doc-converter/internal/trigger"
	"github.com/tendant/simple-doc-converter/pkg/schema"
)

func resolveLoc(t *testing.T, raw string) sasurl.Location {
	t.Helper()
	loc, err := sasurl.Resolve(raw)
	if err != nil {
		t.Fatalf("resolve %s: %v", raw, err)
	}
	return loc
}

func testJobConfig(t *testing.T) trigger.JobConfig {
	t.Helper()
	main := resolveLoc(t, "https://acct.blob.core.windows.net/main/root?sv=1&sig=m")
	return trigger.JobConfig{TriggerName: "start_conversion_1234.txt", Main: main, Source: main, Dest: main}
}

// fakePipe returns scripted outcomes and records every batch it is handed.
type fakePipe struct {
	batches [][]job.WorkItem
	srcs    []sasurl.Location
	dsts    []sasurl.Location
	starts  []time.Time
	outcome func(item job.WorkItem) job.Outcome
	during  func()
}

func (p *fakePipe) Run(_ context.Context, src, dst sasurl.Location, items []job.WorkItem) []job.Outcome {
	p.starts = append(p.starts, time.Now())
	p.batches = append(p.batches, slices.Clone(items))
	p.srcs = append(p.srcs, src)
	p.dsts = append(p.dsts, dst)
	if p.during != nil {
		p.during()
	}
	outs := make([]job.Outcome, len(items))
	for i, it := range items {
		if p.outcome != nil {
			outs[i] = p.outcome(it)
		} else {
			outs[i] = convertedOutcome(it)
		}
	}
	return outs
}

func convertedOutcome(it job.WorkItem) job.Outcome {
	if it.Format.Passthrough() {
		return job.Outcome{Item: it, Status: job.StatusCopied, OutputName: it.Name, OutputSize: it.Size, Reason: "passthrough"}
	}
	return job.Outcome{Item: it, Status: job.StatusConverted, OutputName: job.OutputName(it.Name, it.Format), OutputSize: 2 * it.Size}
}

type fakeEvents struct {
	subjects []string
	payloads []any
}

func (e *fakeEvents) PublishJSON(subject string, v any) error {
	e.subjects = append(e.subjects, subject)
	e.payloads = append(e.payloads, v)
	return nil
}

// failingListStore makes work discovery fail while leaving uploads working,
// so the abort path can still deliver its status log.
type failingListStore struct {
	storage.Store
	listErr error
}

func (s *failingListStore) List(context.Context, sasurl.Location, string) ([]storage.ObjectInfo, error) {
	return nil, s.listErr
}

func newTestRunner(t *testing.T, store storage.Store, pipe BatchProcessor, opts Options) (*Runner, *ledger.Ledger) {
	t.Helper()
	led := ledger.New(filepath.Join(t.TempDir(), "failed.csv"))
	return New(store, pipe, led, opts), led
}

func fixClock(r *Runner, at time.Time) {
	r.now = func() time.Time { return at }
}

func TestRunJobConvertsAndUploadsStatusLog(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	jc := testJobConfig(t)

	for name, data := range map[string]string{"a.docx": "word-bytes", "b.txt": "text", "c.pdf": "pdf"} {
		if err := store.Upload(ctx, jc.Source, storage.FolderFiles, name, []byte(data)); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	ev := &fakeEvents{}
	pipe := &fakePipe{}
	r, led := newTestRunner(t, store, pipe, Options{Events: ev})
	fixClock(r, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))

	res, err := r.RunJob(ctx, jc)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if res.Documents != 3 || res.Converted != 2 || res.Copied != 1 || res.Failed != 0 {
		t.Fatalf("unexpected totals: %+v", res)
	}
	if res.TotalBytes != 31 {
		t.Fatalf("TotalBytes = %d, want 31", res.TotalBytes)
	}
	if res.Batches != 1 || len(pipe.batches) != 1 {
		t.Fatalf("planned %d batches, ran %d, want 1", res.Batches, len(pipe.batches))
	}

	if recs, err := led.Query(ledger.Filter{}); err != nil || len(recs) != 0 {
		t.Fatalf("ledger should stay empty, got %d records, err %v", len(recs), err)
	}

	data, err := store.Download(ctx, jc.Main, storage.FolderStatus, "job_20250314_093000.log")
	if err != nil {
		t.Fatalf("status log missing: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"job_id: " + res.JobID,
		"status: succeeded",
		"documents: 3",
		"converted: 2",
		"copied: 1",
		"failed: 0",
		"bytes_written: 31",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("status log missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "sig=") {
		t.Fatalf("status log leaks the sas token:\n%s", text)
	}

	if len(ev.subjects) != 2 || ev.subjects[0] != "documents.conversion.started" || ev.subjects[1] != "documents.conversion.done" {
		t.Fatalf("published subjects = %v", ev.subjects)
	}
	done, ok := ev.payloads[1].(schema.ConversionJobDone)
	if !ok {
		t.Fatalf("done payload has type %T", ev.payloads[1])
	}
	if done.Status != "succeeded" || done.Converted != 2 || done.Copied != 1 || done.Documents != 3 {
		t.Fatalf("done event: %+v", done)
	}
}

func TestRunJobBatchesInOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	main := resolveLoc(t, "https://acct.blob.core.windows.net/main?sv=1&sig=m")
	src := resolveLoc(t, "https://acct.blob.core.windows.net/src/in?sv=1&sig=s")
	dst := resolveLoc(t, "https://acct.blob.core.windows.net/dst/out?sv=1&sig=d")
	jc := trigger.JobConfig{TriggerName: "go.txt", Main: main, Source: src, Dest: dst}

	var want []string
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("doc%02d.docx", i)
		want = append(want, name)
		if err := store.Upload(ctx, src, storage.FolderFiles, name, []byte("x")); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	pipe := &fakePipe{}
	r, _ := newTestRunner(t, store, pipe, Options{BatchSize: 4})

	res, err := r.RunJob(ctx, jc)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if res.Batches != 3 || len(pipe.batches) != 3 {
		t.Fatalf("planned %d batches, ran %d, want 3", res.Batches, len(pipe.batches))
	}
	sizes := []int{len(pipe.batches[0]), len(pipe.batches[1]), len(pipe.batches[2])}
	if sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Fatalf("batch sizes = %v, want [4 4 2]", sizes)
	}

	var got []string
	for _, b := range pipe.batches {
		for _, it := range b {
			got = append(got, it.Name)
		}
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("items out of order:\n got %v\nwant %v", got, want)
	}

	if pipe.srcs[0].Container != "src" || pipe.dsts[0].Container != "dst" {
		t.Fatalf("locations not propagated: src=%v dst=%v", pipe.srcs[0], pipe.dsts[0])
	}
}

func TestRunJobRecordsFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	jc := testJobConfig(t)

	for _, name := range []string{"bad.docx", "good.docx"} {
		if err := store.Upload(ctx, jc.Source, storage.FolderFiles, name, []byte("doc")); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	pipe := &fakePipe{outcome: func(it job.WorkItem) job.Outcome {
		if it.Name == "bad.docx" {
			return job.Failed(it, job.KindConversionFailed, errors.New("soffice exited 1"))
		}
		return convertedOutcome(it)
	}}
	r, led := newTestRunner(t, store, pipe, Options{})
	fixClock(r, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))

	res, err := r.RunJob(ctx, jc)
	if err != nil {
		t.Fatalf("per-item failures must not fail the job: %v", err)
	}
	if res.Failed != 1 || res.Converted != 1 {
		t.Fatalf("unexpected totals: %+v", res)
	}
	if res.ByKind[job.KindConversionFailed] != 1 {
		t.Fatalf("ByKind = %v", res.ByKind)
	}
	if len(res.Failures) != 1 || res.Failures[0].Name != "bad.docx" || res.Failures[0].Attempts != 1 {
		t.Fatalf("Failures = %+v", res.Failures)
	}

	recs, err := led.Query(ledger.Filter{})
	if err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	if len(recs) != 1 || recs[0].Kind != job.KindConversionFailed || !strings.Contains(recs[0].Message, "soffice") {
		t.Fatalf("ledger records = %+v", recs)
	}

	data, err := store.Download(ctx, jc.Main, storage.FolderStatus, "job_20250314_093000.log")
	if err != nil {
		t.Fatalf("status log missing: %v", err)
	}
	if !strings.Contains(string(data), "failures:") || !strings.Contains(string(data), "bad.docx  CONVERSION_FAILED") {
		t.Fatalf("status log lacks the failure list:\n%s", data)
	}
}

func TestRunJobAbortsWhenListingFails(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	store := &failingListStore{Store: mem, listErr: errors.New("503 throttled")}
	jc := testJobConfig(t)

	pipe := &fakePipe{}
	r, _ := newTestRunner(t, store, pipe, Options{})
	fixClock(r, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))

	res, err := r.RunJob(ctx, jc)
	if err == nil || !strings.Contains(err.Error(), "list source documents") {
		t.Fatalf("want a list failure, got %v", err)
	}
	if res != nil {
		t.Fatalf("no result expected on abort, got %+v", res)
	}
	if len(pipe.batches) != 0 {
		t.Fatalf("pipeline must not run after a failed listing")
	}

	data, err := mem.Download(ctx, jc.Main, storage.FolderStatus, "job_20250314_093000.log")
	if err != nil {
		t.Fatalf("abort must still upload a status log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "status: failed") || !strings.Contains(text, "error: list source documents") {
		t.Fatalf("status log does not report the abort:\n%s", text)
	}
}

func TestRunJobEmptyWorkSet(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	jc := testJobConfig(t)

	pipe := &fakePipe{}
	r, _ := newTestRunner(t, store, pipe, Options{})
	fixClock(r, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))

	res, err := r.RunJob(ctx, jc)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if res.Documents != 0 || res.Batches != 0 {
		t.Fatalf("unexpected totals: %+v", res)
	}
	if len(pipe.batches) != 0 {
		t.Fatalf("pipeline must not run for an empty work set")
	}

	data, err := store.Download(ctx, jc.Main, storage.FolderStatus, "job_20250314_093000.log")
	if err != nil {
		t.Fatalf("status log missing: %v", err)
	}
	if !strings.Contains(string(data), "documents: 0") || !strings.Contains(string(data), "status: succeeded") {
		t.Fatalf("status log:\n%s", data)
	}
}

func TestRunJobSkipsUnsupported(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	jc := testJobConfig(t)

	for _, name := range []string{"scan.docx", "data.xyz", "README"} {
		if err := store.Upload(ctx, jc.Source, storage.FolderFiles, name, []byte("x")); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	pipe := &fakePipe{}
	r, _ := newTestRunner(t, store, pipe, Options{})

	res, err := r.RunJob(ctx, jc)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if res.Documents != 1 || res.Unsupported != 2 {
		t.Fatalf("documents=%d unsupported=%d, want 1 and 2", res.Documents, res.Unsupported)
	}
	if len(pipe.batches) != 1 || len(pipe.batches[0]) != 1 || pipe.batches[0][0].Name != "scan.docx" {
		t.Fatalf("batches = %+v", pipe.batches)
	}
}

func TestRunJobPacesBetweenBatches(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	jc := testJobConfig(t)

	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("doc%d.docx", i)
		if err := store.Upload(ctx, jc.Source, storage.FolderFiles, name, []byte("x")); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	const delay = 30 * time.Millisecond
	pipe := &fakePipe{}
	r, _ := newTestRunner(t, store, pipe, Options{BatchSize: 2, BatchDelay: delay})

	if _, err := r.RunJob(ctx, jc); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(pipe.starts) != 2 {
		t.Fatalf("ran %d batches, want 2", len(pipe.starts))
	}
	if gap := pipe.starts[1].Sub(pipe.starts[0]); gap < delay {
		t.Fatalf("second batch started after %v, want at least %v", gap, delay)
	}
}

func TestRunJobStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := storage.NewMemory()
	jc := testJobConfig(t)

	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("doc%d.docx", i)
		if err := store.Upload(ctx, jc.Source, storage.FolderFiles, name, []byte("x")); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	pipe := &fakePipe{during: cancel}
	r, _ := newTestRunner(t, store, pipe, Options{BatchSize: 2})
	fixClock(r, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))

	res, err := r.RunJob(ctx, jc)
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("want a canceled-context error, got %v", err)
	}
	if len(pipe.batches) != 1 {
		t.Fatalf("second batch must not start after cancellation, ran %d", len(pipe.batches))
	}
	if res == nil || res.Converted != 2 {
		t.Fatalf("first batch results must survive: %+v", res)
	}

	data, err := store.Download(ctx, jc.Main, storage.FolderStatus, "job_20250314_093000.log")
	if err != nil {
		t.Fatalf("status log missing: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "status: failed") || !strings.Contains(text, "interrupted after 1/2 batches") {
		t.Fatalf("status log does not report the interruption:\n%s", text)
	}
}

func TestStatusLogRendering(t *testing.T) {
	jc := trigger.JobConfig{
		TriggerName: "start.txt",
		Main:        resolveLoc(t, "https://acct.blob.core.windows.net/main?sv=1&sig=m"),
		Source:      resolveLoc(t, "https://acct.blob.core.windows.net/src/in?sv=1&sig=s"),
		Dest:        resolveLoc(t, "https://acct.blob.core.windows.net/dst/out?sv=1&sig=d"),
	}
	started := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	res := &Result{
		JobID:     "j-1",
		Trigger:   "start.txt",
		Documents: 2,
		Batches:   1,
		Converted: 1,
		Failed:    1,
		ByKind:    map[job.ErrorKind]int{job.KindUploadFailed: 1},
		Failures:  []ledger.Record{{Name: "bad.docx", Kind: job.KindUploadFailed, Message: "403"}},
		Started:   started,
		Elapsed:   1500 * time.Millisecond,
	}
	state := process.NewJob("bulk_conversion", "j-1", "start.txt")
	state.MarkRunning(started)
	state.MarkFailed(started.Add(res.Elapsed), errors.New("boom"))

	out := statusLog(jc, res, state)
	for _, want := range []string{
		"status: failed",
		"error: boom",
		"elapsed: 1.5s",
		"source: https://acct.blob.core.windows.net/src/in",
		"dest: https://acct.blob.core.windows.net/dst/out",
		"  bad.docx  UPLOAD_FAILED  403",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("status log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sig=") {
		t.Fatalf("status log leaks the sas token:\n%s", out)
	}
}
