// Package trigger parses trigger artifacts and builds per-job configuration.
package trigger

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-doc-converter/internal/sasurl"
)

// Params are the dynamic overrides carried by a trigger artifact. Both fields
// are optional; an empty trigger body is a valid request against the main
// location.
type Params struct {
	SourceURL string
	DestURL   string
}

// ParseParams reads key:value lines from a trigger body. Keys are lowercased
// and trimmed, values keep everything after the first colon (SAS URLs contain
// colons themselves). Blank lines, comment lines and unknown keys are
// ignored; parsing never fails.
func ParseParams(content string) Params {
	var p Params
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "source_sas_url":
			p.SourceURL = value
		case "dest_sas_url":
			p.DestURL = value
		}
	}
	return p
}

// JobConfig is the immutable configuration of one conversion job. Source and
// Dest fall back to Main when the trigger carries no override.
type JobConfig struct {
	TriggerName string
	Main        sasurl.Location
	Source      sasurl.Location
	Dest        sasurl.Location
}

// Load builds a JobConfig from a trigger body. Overrides that fail to resolve
// abort the job before it starts; that is the only failure mode. A body with
// no usable keys yields a config pointing everything at main.
func Load(main sasurl.Location, content string) (JobConfig, error) {
	p := ParseParams(content)
	jc := JobConfig{Main: main, Source: main, Dest: main}

	if p.SourceURL != "" {
		loc, err := sasurl.Resolve(p.SourceURL)
		if err != nil {
			return JobConfig{}, fmt.Errorf("resolve source_sas_url: %w", err)
		}
		jc.Source = loc
	}
	if p.DestURL != "" {
		loc, err := sasurl.Resolve(p.DestURL)
		if err != nil {
			return JobConfig{}, fmt.Errorf("resolve dest_sas_url: %w", err)
		}
		jc.Dest = loc
	}
	return jc, nil
}

// Matches reports whether an object in the control folder is a trigger
// artifact: either the exact configured name, or any object carrying the
// fallback extension when no exact match exists. The exact comparison is
// case-sensitive; the extension comparison is not.
func Matches(name, triggerName, fallbackExt string) bool {
	if name == triggerName {
		return true
	}
	return fallbackExt != "" && strings.EqualFold(filepath.Ext(name), fallbackExt)
}
