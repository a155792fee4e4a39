// Package traceparse extracts call frames and the terminal error identity
// from Python-style traceback text.
package traceparse

import (
	"regexp"
	"strconv"
	"strings"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// TracebackMarker is the header line every valid trace must contain.
const TracebackMarker = "Traceback (most recent call last):"

var frameHeader = regexp.MustCompile(`^File "(.+?)", line (\S+), in (\S+)`)

// Parser turns raw trace text into an ordered sequence of frames.
type Parser struct{}

// NewParser creates a frame parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse returns the frames found in text, outermost call first.
//
// A frame header consumes the following line as its code snippet unless that
// line is missing or is itself a header. Headers with a non-numeric or
// non-positive line number are dropped. Parse never fails; input without
// frames yields an empty slice.
func (p *Parser) Parse(text string) []apiv1.Frame {
	frames := make([]apiv1.Frame, 0)
	if strings.TrimSpace(text) == "" {
		return frames
	}

	lines := splitLines(text)
	for i := 0; i < len(lines); i++ {
		m := frameHeader.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			continue
		}

		var code string
		if i+1 < len(lines) && !isFrameHeader(lines[i+1]) {
			code = strings.TrimSpace(lines[i+1])
			i++
		}

		lineNo, err := strconv.Atoi(m[2])
		if err != nil || lineNo < 1 {
			continue
		}

		frames = append(frames, apiv1.Frame{
			File:     m[1],
			Line:     lineNo,
			Function: m[3],
			Code:     code,
		})
	}
	return frames
}

func isFrameHeader(line string) bool {
	return frameHeader.MatchString(strings.TrimSpace(line))
}

// splitLines splits on \n and drops a trailing \r from each line.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
