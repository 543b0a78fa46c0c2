// cmd/failures inspects and manages the failed conversions ledger.
//
// Usage:
//   ./failures summary
//   ./failures -hours 48 -error-type CONVERSION_FAILED list
//   ./failures -output report.csv export
//   ./failures -days 30 clear
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/tendant/simple-doc-converter/internal/job"
	"github.com/tendant/simple-doc-converter/internal/ledger"
)

func main() {
	ledgerPath := flag.String("ledger", "failed_conversions.csv", "Path to the failed conversions ledger")
	hours := flag.Int("hours", 24, "Hours to look back when listing (0 = all)")
	days := flag.Int("days", 30, "Days of records to keep when clearing")
	output := flag.String("output", "", "Output file for export (default: failed_conversions_export_<timestamp>.csv, \"-\" = stdout)")
	errorType := flag.String("error-type", "", "Filter by error type")
	filename := flag.String("filename", "", "Filter by filename substring")
	limit := flag.Int("limit", 0, "Maximum records to list (0 = unlimited)")
	flag.Usage = usage
	flag.Parse()

	led := ledger.New(*ledgerPath)

	var err error
	switch flag.Arg(0) {
	case "summary":
		err = showSummary(led)
	case "list":
		err = showList(led, *hours, *errorType, *filename, *limit)
	case "export":
		err = exportRecords(led, *output, *errorType, *filename)
	case "clear":
		err = clearOld(led, *days)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[FAILED] %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command>

Commands:
  summary   Show failure counts and the per-error-type breakdown
  list      List failures matching the filters
  export    Write matching failures to a new CSV file
  clear     Drop records older than -days

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func showSummary(led *ledger.Ledger) error {
	s, err := led.Summarize()
	if err != nil {
		return err
	}

	fmt.Println("=== FAILED CONVERSIONS SUMMARY ===")
	fmt.Printf("Total failures: %d\n", s.Total)
	fmt.Printf("Unique files with failures: %d\n", s.UniqueFiles)
	fmt.Printf("Failures in last 24h: %d\n", s.Last24h)
	if s.Total > 0 && !s.Oldest.IsZero() {
		fmt.Printf("Window: %s to %s\n", s.Oldest.Format(time.RFC3339), s.Newest.Format(time.RFC3339))
	}

	if len(s.ByKind) > 0 {
		fmt.Println("\nError types breakdown:")
		for _, kind := range sortedKinds(s.ByKind) {
			fmt.Printf("  %s: %d\n", kind, s.ByKind[kind])
		}
	}

	if s.Total == 0 {
		fmt.Println("\n[OK] No failed conversions recorded")
	} else {
		fmt.Printf("\nDetailed records available in: %s\n", led.Path())
	}
	return nil
}

func showList(led *ledger.Ledger, hours int, errorType, filename string, limit int) error {
	f := ledger.Filter{Kind: job.ErrorKind(errorType), Name: filename, Limit: limit}
	if hours > 0 {
		f.Since = time.Duration(hours) * time.Hour
		fmt.Printf("Recent failures (last %d hours):\n", hours)
	} else {
		fmt.Println("All failed conversions:")
	}
	if errorType != "" {
		fmt.Printf("Filtered by error type: %s\n", errorType)
	}
	if filename != "" {
		fmt.Printf("Filtered by filename: %s\n", filename)
	}

	recs, err := led.Query(f)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No failures found matching the criteria.")
		return nil
	}

	fmt.Printf("\nFound %d failures:\n", len(recs))
	fmt.Println(strings.Repeat("-", 80))
	for i, r := range recs {
		fmt.Printf("%d. %s\n", i+1, r.Name)
		fmt.Printf("   Timestamp: %s\n", r.Timestamp.Format(time.RFC3339))
		fmt.Printf("   Error Type: %s\n", r.Kind)
		fmt.Printf("   Error Message: %s\n", r.Message)
		fmt.Printf("   File Size: %d bytes\n", r.Size)
		fmt.Printf("   Attempt Count: %d\n", r.Attempts)
		fmt.Println()
	}
	return nil
}

func exportRecords(led *ledger.Ledger, output, errorType, filename string) error {
	if output == "" {
		output = "failed_conversions_export_" + time.Now().Format("20060102_150405") + ".csv"
	}
	f := ledger.Filter{Kind: job.ErrorKind(errorType), Name: filename}

	if output == "-" {
		return led.Export(os.Stdout, f)
	}
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := led.Export(out, f); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Printf("[OK] Exported failures to: %s\n", output)
	return nil
}

func clearOld(led *ledger.Ledger, days int) error {
	removed, err := led.Prune(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return err
	}
	s, err := led.Summarize()
	if err != nil {
		return err
	}
	fmt.Printf("[OK] Cleared %d old records (older than %d days)\n", removed, days)
	fmt.Printf("Remaining records: %d\n", s.Total)
	return nil
}

func sortedKinds(m map[job.ErrorKind]int) []job.ErrorKind {
	kinds := make([]job.ErrorKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
