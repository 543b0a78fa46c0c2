package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/tendant/simple-doc-converter/internal/job"
)

// Options configures the production converter.
type Options struct {
	Soffice string        // soffice binary name or path (default "soffice")
	Timeout time.Duration // per-conversion deadline (default 2m)
}

// DocumentConverter is the production binding. Office documents go through a
// headless LibreOffice run, images are normalized and wrapped into a
// single-page PDF. Each conversion works in its own temp directory, removed
// when the call returns.
type DocumentConverter struct {
	soffice string
	timeout time.Duration
}

func New(opts Options) *DocumentConverter {
	if opts.Soffice == "" {
		opts.Soffice = "soffice"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &DocumentConverter{soffice: opts.Soffice, timeout: opts.Timeout}
}

// Name returns the converter name for logs and CLI output.
func (c *DocumentConverter) Name() string { return "libreoffice+pdfcpu" }

func (c *DocumentConverter) Convert(ctx context.Context, input []byte, format job.Format) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch format {
	case job.FormatPdf, job.FormatTiff:
		return input, nil
	case job.FormatWord, job.FormatHtml, job.FormatText:
		return c.convertOffice(ctx, input, format)
	case job.FormatImage:
		return c.convertImage(ctx, input)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
}

func (c *DocumentConverter) convertOffice(ctx context.Context, input []byte, format job.Format) ([]byte, error) {
	exe, err := exec.LookPath(c.soffice)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w (install libreoffice)", c.soffice, err)
	}

	tmp, err := os.MkdirTemp("", "docconv-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	ext := officeExt(format)
	in := filepath.Join(tmp, "input"+ext)
	if err := os.WriteFile(in, input, 0o600); err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}

	// Concurrent soffice processes cannot share one user profile.
	profile := "-env:UserInstallation=file://" + filepath.Join(tmp, "profile")
	cmd := exec.CommandContext(ctx, exe,
		"--headless", "--norestore", profile,
		"--convert-to", "pdf", "--outdir", tmp, in)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("soffice failed: %w\nOutput: %s", err, string(out))
	}

	// soffice exits 0 even when the import filter rejects the file; the
	// missing output is the only signal.
	data, err := os.ReadFile(strings.TrimSuffix(in, ext) + ".pdf")
	if err != nil {
		return nil, fmt.Errorf("soffice produced no output: %w\nOutput: %s", err, string(out))
	}
	return data, nil
}

func (c *DocumentConverter) convertImage(ctx context.Context, input []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	tmp, err := os.MkdirTemp("", "docconv-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	page := filepath.Join(tmp, "page.png")
	if err := imaging.Save(img, page); err != nil {
		return nil, fmt.Errorf("save normalized image: %w", err)
	}

	outPath := filepath.Join(tmp, "out.pdf")
	if err := pdfapi.ImportImagesFile([]string{page}, outPath, nil, nil); err != nil {
		return nil, fmt.Errorf("assemble pdf: %w", err)
	}
	return os.ReadFile(outPath)
}

func officeExt(format job.Format) string {
	switch format {
	case job.FormatWord:
		return ".docx"
	case job.FormatHtml:
		return ".html"
	default:
		return ".txt"
	}
}
