// Package sink implements the Output Sink read path: resolving a task's
// most recent text, structured, and HTML output from files under the
// out-dir, tolerating any I/O error as empty output.
//
// A reader never blocks a writer: every lookup scans once for the last
// matching line and treats any I/O error as absent output rather than a
// failure.
package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/mnicolasvega/taskcommander/pkg/metrics"
)

// Triple is the (text, structured, html) result the Commander records in
// tasks-output for a task.
type Triple struct {
	Text string
	Data any
	HTML string
}

// Sink resolves a task's artifacts under a fixed out-dir.
type Sink struct {
	outDir string
}

// New constructs a Sink rooted at outDir.
func New(outDir string) *Sink {
	return &Sink{outDir: outDir}
}

// Read collects the current (text, data, html) triple for taskName. Any
// missing file or I/O error yields the zero value for that field; Read
// itself never returns an error.
func (s *Sink) Read(taskName string) Triple {
	text := s.readDataAsText(taskName, "output.txt")
	data := s.readData(taskName, "output.log")
	html := s.readHTML(taskName)

	metrics.ArtifactReadsTotal.WithLabelValues("text", outcomeLabel(text != "")).Inc()
	metrics.ArtifactReadsTotal.WithLabelValues("data", outcomeLabel(data != nil)).Inc()
	metrics.ArtifactReadsTotal.WithLabelValues("html", outcomeLabel(html != "")).Inc()

	return Triple{Text: text, Data: data, HTML: html}
}

func outcomeLabel(present bool) string {
	if present {
		return "found"
	}
	return "empty"
}

func (s *Sink) readDataAsText(taskName, file string) string {
	v := s.scanLastMatchingLine(taskName, file)
	if v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func (s *Sink) readData(taskName, file string) any {
	return s.scanLastMatchingLine(taskName, file)
}

// scanLastMatchingLine scans file for the last line prefixed with
// "<taskName>:", returning the parsed JSON value after the prefix if it
// parses, else the raw trimmed remainder as a string. A missing file or
// any read error yields nil.
func (s *Sink) scanLastMatchingLine(taskName, file string) any {
	path := filepath.Join(s.outDir, file)
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	prefix := taskName + ":"
	var lastMatch string
	found := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			lastMatch = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			found = true
		}
	}
	if err := scanner.Err(); err != nil || !found {
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(lastMatch), &parsed); err == nil {
		return parsed
	}
	return lastMatch
}

func (s *Sink) readHTML(taskName string) string {
	path := filepath.Join(s.outDir, "output", taskName+".html")
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(content)
}
