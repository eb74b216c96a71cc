// Package ingest feeds markdown slide decks into the vector store. It is
// the producer side of the pipeline: files are segmented into slides, and
// each slide becomes one stored document with source metadata.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Slide delimiters: reveal/hugo-style horizontal rules starting a line.
var slideDelimiter = regexp.MustCompile(`^\s*(---|\+\+\+)`)

// Slide is one segment of a slide deck.
type Slide struct {
	Content   string
	Source    string
	LineStart int
	LineEnd   int
	Index     int
}

// SplitFile reads the file at path and splits it into slides. Source is the
// label recorded in slide metadata (typically a path relative to the
// content root).
func SplitFile(path, source string) ([]Slide, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open slide file: %w", err)
	}
	defer f.Close()
	return Split(f, source)
}

// Split segments r into slides on delimiter lines. Runs of blank lines are
// collapsed to one. Slides with no content are dropped.
func Split(r io.Reader, source string) ([]Slide, error) {
	var slides []Slide
	var lines []string
	lineNumber := 0
	slideStart := 1
	lastWasBlank := false

	flush := func(end int) {
		content := strings.Join(lines, "\n")
		if strings.TrimSpace(content) != "" {
			slides = append(slides, Slide{
				Content:   content,
				Source:    source,
				LineStart: slideStart,
				LineEnd:   end,
				Index:     len(slides),
			})
		}
		lines = lines[:0]
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if slideDelimiter.MatchString(line) {
			flush(lineNumber - 1)
			slideStart = lineNumber + 1
			lastWasBlank = false
			continue
		}
		stripped := strings.TrimSpace(line)
		if stripped != "" || !lastWasBlank {
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
		lastWasBlank = stripped == ""
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read slide file: %w", err)
	}
	flush(lineNumber)
	return slides, nil
}
