// Package convert turns source documents into PDF bytes.
//
// The pipeline depends only on the Converter interface; the production
// binding shells out to LibreOffice for office formats and assembles image
// pages with pdfcpu. Converter instances are not safe for concurrent use,
// which is why workers obtain their own instance through a Factory.
package convert

import (
	"context"
	"errors"

	"github.com/tendant/simple-doc-converter/internal/job"
)

// ErrUnsupported marks formats no converter handles. Discovery filters these
// out, so seeing it at runtime means an item bypassed discovery.
var ErrUnsupported = errors.New("unsupported format")

// Converter produces PDF bytes from a source document. Passthrough formats
// (pdf, tiff) are returned unchanged.
type Converter interface {
	Convert(ctx context.Context, input []byte, format job.Format) ([]byte, error)
}

// Factory hands each pipeline worker its own Converter instance.
type Factory interface {
	New() Converter
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func() Converter

func (f FactoryFunc) New() Converter { return f() }
