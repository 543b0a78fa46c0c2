// Package job holds the work-set domain types shared by the planner, the
// pipeline and the runner.
package job

import (
	"path/filepath"
	"sort"
	"strings"
)

// Format classifies a source document by its file extension.
type Format string

const (
	FormatWord        Format = "word"
	FormatText        Format = "text"
	FormatHtml        Format = "html"
	FormatImage       Format = "image"
	FormatTiff        Format = "tiff"
	FormatPdf         Format = "pdf"
	FormatUnsupported Format = "unsupported"
)

var formatByExt = map[string]Format{
	".doc":  FormatWord,
	".docx": FormatWord,
	".rtf":  FormatWord,
	".odt":  FormatWord,
	".txt":  FormatText,
	".html": FormatHtml,
	".htm":  FormatHtml,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".png":  FormatImage,
	".tif":  FormatTiff,
	".tiff": FormatTiff,
	".pdf":  FormatPdf,
}

// FormatFromName maps a file name to its Format. Unknown extensions map to
// FormatUnsupported and are dropped at discovery time.
func FormatFromName(name string) Format {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := formatByExt[ext]; ok {
		return f
	}
	return FormatUnsupported
}

// SupportedExtensions lists the recognized file extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formatByExt))
	for ext := range formatByExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Passthrough reports whether a format is stored verbatim instead of being
// converted. PDFs are already in the target format; TIFFs are accepted as-is
// by the downstream consumers.
func (f Format) Passthrough() bool {
	return f == FormatPdf || f == FormatTiff
}

// OutputName returns the destination object name for a source document.
// Converted documents are renamed to <base>.pdf; passthrough documents keep
// their original name, extension included.
func OutputName(name string, f Format) string {
	if f.Passthrough() {
		return name
	}
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)] + ".pdf"
}

// WorkItem is one source document scheduled for processing.
type WorkItem struct {
	Name   string
	Size   int64
	Format Format
}

// ErrorKind classifies a per-item failure for the failure ledger. Values are
// written verbatim into the ledger's error_type column.
type ErrorKind string

const (
	KindDownloadFailed   ErrorKind = "DOWNLOAD_FAILED"
	KindConversionFailed ErrorKind = "CONVERSION_FAILED"
	KindUploadFailed     ErrorKind = "UPLOAD_FAILED"
	KindProcessingError  ErrorKind = "PROCESSING_ERROR"
)

// Status is the terminal state of one work item.
type Status string

const (
	StatusConverted Status = "converted"
	StatusCopied    Status = "copied"
	StatusFailed    Status = "failed"
)

// Outcome records what happened to a single work item. A failed outcome never
// aborts the surrounding batch; the pipeline emits exactly one outcome per
// item, in input order.
type Outcome struct {
	Item       WorkItem
	Status     Status
	OutputName string
	OutputSize int64
	Reason     string // set for copied items
	ErrorKind  ErrorKind
	Message    string
	Attempt    int
}

// Failed builds a failure outcome for an item.
func Failed(item WorkItem, kind ErrorKind, err error) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{
		Item:      item,
		Status:    StatusFailed,
		ErrorKind: kind,
		Message:   msg,
		Attempt:   1,
	}
}
