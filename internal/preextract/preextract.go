// Package preextract implements the Log Pre-extractor (§4.D): running
// rule-declared regex patterns over materialized logs to produce bounded
// text snippets for the agent prompt.
package preextract

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

const (
	defaultMaxLinesPerPattern = 200
	scannerBufferSize         = 1024 * 1024
)

// compiledPattern pairs a compiled regex with its declared name and
// date-filter flag. Compilation happens once per Task (§4.D).
type compiledPattern struct {
	name       string
	re         *regexp.Regexp
	dateFilter bool
}

// isoDatePrefix matches a leading ISO-like timestamp, e.g. "2024-03-18T..."
// or "2024-03-18 ...".
var isoDatePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// Extractor scans a Workspace's logs/ tree for one Task's selected patterns.
type Extractor struct {
	MaxLinesPerPattern int
	PerFileDeadline    time.Duration
}

func New(maxLines int, perFileDeadline time.Duration) *Extractor {
	if maxLines <= 0 {
		maxLines = defaultMaxLinesPerPattern
	}
	if perFileDeadline <= 0 {
		perFileDeadline = 30 * time.Second
	}
	return &Extractor{MaxLinesPerPattern: maxLines, PerFileDeadline: perFileDeadline}
}

// Result holds, per pattern name, the ordered matching lines (order of
// first occurrence across files).
type Result map[string][]string

// Run compiles patterns once, then streams every file under logsDir,
// collecting up to MaxLinesPerPattern matches per pattern. When a pattern's
// DateFilter is set and eventDate is non-nil, only lines whose leading
// ISO-like timestamp falls on eventDate ± 1 day are retained.
func (e *Extractor) Run(ctx context.Context, logsDir string, patterns []models.PreExtractPattern, eventDate *time.Time) (Result, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %s: %w", p.Name, err)
		}
		compiled = append(compiled, compiledPattern{name: p.Name, re: re, dateFilter: p.DateFilter})
	}

	result := make(Result, len(compiled))
	counts := make(map[string]int, len(compiled))

	var files []string
	err := filepath.WalkDir(logsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole scan
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk logs dir: %w", err)
	}
	sort.Strings(files) // deterministic "order of first occurrence" across files

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if allPatternsFull(compiled, counts, e.MaxLinesPerPattern) {
			break
		}
		if err := e.scanFile(path, compiled, eventDate, result, counts); err != nil {
			continue // a single unreadable file does not fail the whole extraction
		}
	}
	return result, nil
}

func allPatternsFull(compiled []compiledPattern, counts map[string]int, max int) bool {
	for _, p := range compiled {
		if counts[p.name] < max {
			return false
		}
	}
	return len(compiled) > 0
}

func (e *Extractor) scanFile(path string, compiled []compiledPattern, eventDate *time.Time, result Result, counts map[string]int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	deadline := time.Now().Add(e.PerFileDeadline)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, scannerBufferSize), scannerBufferSize)

	for scanner.Scan() {
		if time.Now().After(deadline) {
			break // soft per-file deadline (§4.D)
		}
		line := scanner.Text()
		for _, p := range compiled {
			if counts[p.name] >= e.MaxLinesPerPattern {
				continue
			}
			if !p.re.MatchString(line) {
				continue
			}
			if p.dateFilter && eventDate != nil && !withinEventWindow(line, *eventDate) {
				continue
			}
			result[p.name] = append(result[p.name], line)
			counts[p.name]++
		}
	}
	return scanner.Err()
}

func withinEventWindow(line string, eventDate time.Time) bool {
	m := isoDatePrefix.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	lineDate, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return false
	}
	diff := lineDate.Sub(eventDate.Truncate(24 * time.Hour))
	return diff >= -24*time.Hour && diff <= 24*time.Hour
}

// RenderBlock formats the result as the "name -> [lines]" text block
// appended to the agent prompt (§4.D).
func (r Result) RenderBlock() string {
	if len(r) == 0 {
		return ""
	}
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(" -> [\n")
		for _, line := range r[name] {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("]\n")
	}
	return b.String()
}
