// Package vtt reads and writes WebVTT caption files.
package vtt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lkrnac/manucap-sub004/internal/cue"
)

var timestampRe = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}[.,]\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}[.,]\d{3})`)

// Parse parses WebVTT content into cue records. Inline markup is kept
// verbatim in the cue text; NOTE blocks and cue identifiers are dropped.
func Parse(content string) []*cue.Record {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var records []*cue.Record
	var current *cue.Record
	inNote := false

	flush := func() {
		if current != nil && current.Text != "" {
			records = append(records, current)
		}
		current = nil
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)

		// Skip WEBVTT header and empty lines
		if line == "WEBVTT" || line == "" {
			flush()
			inNote = false
			continue
		}
		if strings.HasPrefix(line, "NOTE") && current == nil {
			inNote = true
			continue
		}
		if inNote {
			continue
		}

		// Check for timestamp line
		if matches := timestampRe.FindStringSubmatch(line); len(matches) == 3 {
			flush()
			current = cue.NewRecord(cue.TimeInterval{
				Start: parseTimestamp(matches[1]),
				End:   parseTimestamp(matches[2]),
			}, "")
			continue
		}

		// Skip cue identifiers (pure digits before a timestamp line)
		if _, err := strconv.Atoi(line); err == nil && current == nil {
			continue
		}

		// Text line
		if current != nil {
			if current.Text != "" {
				current.Text += "\n"
			}
			current.Text += line
		}
	}

	flush()
	return records
}

// Format serializes cue records as a WebVTT document.
func Format(records []*cue.Record) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")

	for i, rec := range records {
		sb.WriteString(fmt.Sprintf("%d\n", i+1))
		sb.WriteString(fmt.Sprintf("%s --> %s\n",
			formatTimestamp(rec.Interval.Start), formatTimestamp(rec.Interval.End)))
		sb.WriteString(rec.Text)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

func parseTimestamp(ts string) float64 {
	ts = strings.Replace(ts, ",", ".", 1)
	var h, m, s int
	var ms int
	fmt.Sscanf(ts, "%d:%d:%d.%d", &h, &m, &s, &ms)
	return float64(h*3600+m*60+s) + float64(ms)/1000.0
}

func formatTimestamp(seconds float64) string {
	totalMs := int(seconds*1000 + 0.5)
	h := totalMs / 3600000
	totalMs %= 3600000
	m := totalMs / 60000
	totalMs %= 60000
	s := totalMs / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
