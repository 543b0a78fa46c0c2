// cmd/test-convert converts one local document to PDF without the worker
// infrastructure, using the same converter the pipeline runs.
//
// Usage:
//   ./test-convert -input report.docx
//   ./test-convert -input scan.jpg -output scan.pdf -timeout 60
//   ./test-convert -input notes.txt -soffice /usr/bin/soffice -v
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-doc-converter/internal/convert"
	"github.com/tendant/simple-doc-converter/internal/job"
)

func main() {
	input := flag.String("input", "", "Input document path (required)")
	output := flag.String("output", "", "Output path (default: <input base>.pdf)")
	timeout := flag.Int("timeout", 120, "Conversion timeout in seconds")
	soffice := flag.String("soffice", "soffice", "LibreOffice binary name or path")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("❌ Failed to read input file: %v", err)
	}

	format := job.FormatFromName(*input)
	if format == job.FormatUnsupported {
		log.Fatalf("❌ Unsupported file type: %s\n\nSupported extensions:\n%s",
			filepath.Ext(*input), formatSupportedExtensions())
	}

	if *output == "" {
		*output = job.OutputName(filepath.Base(*input), format)
	}

	if *verbose {
		fmt.Printf("📄 Input: %s (%s)\n", *input, formatBytes(int64(len(data))))
		fmt.Printf("🔍 Format: %s\n", format)
		if format.Passthrough() {
			fmt.Println("🔍 Passthrough format, bytes are copied unchanged")
		}
	}

	conv := convert.New(convert.Options{
		Soffice: *soffice,
		Timeout: time.Duration(*timeout) * time.Second,
	})
	if *verbose {
		fmt.Printf("🔧 Using converter: %s\n", conv.Name())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	fmt.Printf("\n🎨 Converting %s...\n", filepath.Base(*input))
	start := time.Now()

	result, err := conv.Convert(ctx, data, format)
	if err != nil {
		log.Fatalf("❌ Conversion failed: %v", err)
	}

	if err := os.WriteFile(*output, result, 0o644); err != nil {
		log.Fatalf("❌ Failed to write output file: %v", err)
	}
	duration := time.Since(start)

	fmt.Printf("\n✅ Conversion successful!\n")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("📁 Output: %s\n", *output)
	fmt.Printf("📏 Size: %s\n", formatBytes(int64(len(result))))
	fmt.Printf("⏱️  Time: %v\n", duration.Round(time.Millisecond))

	if *verbose {
		fmt.Printf("\n📊 Input file: %s (%s)\n", *input, formatBytes(int64(len(data))))
		if len(data) > 0 {
			fmt.Printf("📊 Output/input ratio: %.1f%%\n", float64(len(result))/float64(len(data))*100)
		}
	}

	fmt.Println()
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatSupportedExtensions returns a formatted list of recognized extensions
func formatSupportedExtensions() string {
	result := ""
	for _, ext := range job.SupportedExtensions() {
		result += fmt.Sprintf("  • %s (%s)\n", ext, job.FormatFromName("x"+ext))
	}
	return result
}
