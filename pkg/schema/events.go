// pkg/schema/events.go
package schema

// ConversionJobStarted is published once a trigger has been accepted and the
// work set discovered, before the first batch runs.
type ConversionJobStarted struct {
	JobID      string `json:"job_id"`
	Trigger    string `json:"trigger"`
	Source     string `json:"source"`
	Dest       string `json:"dest"`
	Documents  int    `json:"documents"`
	Batches    int    `json:"batches"`
	HappenedAt int64  `json:"happened_at"`
}

// ConversionJobDone is published when a job finishes, whether it succeeded,
// aborted, or was interrupted by shutdown. Counts cover the whole run;
// ErrorKinds breaks the failures down by classification.
type ConversionJobDone struct {
	JobID            string         `json:"job_id"`
	Trigger          string         `json:"trigger"`
	Status           string         `json:"status"`
	Documents        int            `json:"documents"`
	Converted        int            `json:"converted"`
	Copied           int            `json:"copied"`
	Failed           int            `json:"failed"`
	TotalBytes       int64          `json:"total_bytes"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	ErrorKinds       map[string]int `json:"error_kinds,omitempty"`
	Error            string         `json:"error,omitempty"`
	HappenedAt       int64          `json:"happened_at"`
}
