package runner

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tendant/simple-doc-converter/internal/job"
	"github.com/tendant/simple-doc-converter/internal/process"
	"github.com/tendant/simple-doc-converter/internal/trigger"
)

// statusLog renders the report uploaded to the main location's job_status
// folder. Plain key:value lines, the same shape as the trigger artifact,
// followed by one line per failed document.
func statusLog(jc trigger.JobConfig, res *Result, state *process.Job) string {
	var b strings.Builder
	line := func(k string, v any) {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	line("job_id", res.JobID)
	line("trigger", res.Trigger)
	line("status", state.Status)
	line("started", res.Started.UTC().Format(time.RFC3339))
	line("elapsed", res.Elapsed.Round(time.Millisecond))
	line("source", jc.Source.Redacted())
	line("dest", jc.Dest.Redacted())
	line("documents", res.Documents)
	line("unsupported", res.Unsupported)
	line("batches", res.Batches)
	line("converted", res.Converted)
	line("copied", res.Copied)
	line("failed", res.Failed)
	line("bytes_written", res.TotalBytes)
	if state.Error != "" {
		line("error", state.Error)
	}
	if len(res.Failures) > 0 {
		b.WriteString("\nfailures:\n")
		for _, f := range res.Failures {
			fmt.Fprintf(&b, "  %s  %s  %s\n", f.Name, f.Kind, f.Message)
		}
	}
	return b.String()
}

// sortedKinds returns the breakdown keys in a stable order for logging.
func sortedKinds(m map[job.ErrorKind]int) []job.ErrorKind {
	kinds := make([]job.ErrorKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
