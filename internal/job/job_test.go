package job

import (
	"errors"
	"sort"
	"testing"
)

func TestFormatFromName(t *testing.T) {
	cases := []struct {
		name string
		want Format
	}{
		{"report.docx", FormatWord},
		{"legacy.DOC", FormatWord},
		{"memo.rtf", FormatWord},
		{"letter.odt", FormatWord},
		{"notes.txt", FormatText},
		{"page.html", FormatHtml},
		{"page.htm", FormatHtml},
		{"scan.jpg", FormatImage},
		{"photo.PNG", FormatImage},
		{"fax.tif", FormatTiff},
		{"fax.tiff", FormatTiff},
		{"final.pdf", FormatPdf},
		{"archive.zip", FormatUnsupported},
		{"anim.gif", FormatUnsupported},
		{"noextension", FormatUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatFromName(tc.name); got != tc.want {
				t.Fatalf("FormatFromName(%q) = %s, want %s", tc.name, got, tc.want)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		name   string
		format Format
		want   string
	}{
		{"report.docx", FormatWord, "report.pdf"},
		{"scan.jpg", FormatImage, "scan.pdf"},
		{"notes.txt", FormatText, "notes.pdf"},
		{"fax.tif", FormatTiff, "fax.tif"},
		{"final.pdf", FormatPdf, "final.pdf"},
	}
	for _, tc := range cases {
		if got := OutputName(tc.name, tc.format); got != tc.want {
			t.Fatalf("OutputName(%q, %s) = %q, want %q", tc.name, tc.format, got, tc.want)
		}
	}
}

func TestSupportedExtensions(t *testing.T) {
	exts := SupportedExtensions()
	if !sort.StringsAreSorted(exts) {
		t.Fatalf("extensions not sorted: %v", exts)
	}
	for _, ext := range exts {
		if FormatFromName("x"+ext) == FormatUnsupported {
			t.Fatalf("%s listed but not recognized", ext)
		}
	}
	if len(exts) != 13 {
		t.Fatalf("got %d extensions, want 13: %v", len(exts), exts)
	}
}

func TestPassthrough(t *testing.T) {
	if !FormatPdf.Passthrough() || !FormatTiff.Passthrough() {
		t.Fatal("pdf and tiff must be passthrough formats")
	}
	for _, f := range []Format{FormatWord, FormatText, FormatHtml, FormatImage} {
		if f.Passthrough() {
			t.Fatalf("%s must not be passthrough", f)
		}
	}
}

func TestFailedOutcome(t *testing.T) {
	item := WorkItem{Name: "a.docx", Size: 10, Format: FormatWord}
	out := Failed(item, KindDownloadFailed, errors.New("connection reset"))

	if out.Status != StatusFailed {
		t.Fatalf("unexpected status: %s", out.Status)
	}
	if out.ErrorKind != KindDownloadFailed {
		t.Fatalf("unexpected kind: %s", out.ErrorKind)
	}
	if out.Message != "connection reset" {
		t.Fatalf("unexpected message: %s", out.Message)
	}
	if out.Attempt != 1 {
		t.Fatalf("unexpected attempt: %d", out.Attempt)
	}
}
