package msdata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrNoData = errors.New("no numeric rows found in text data")

// TextOptions describes how to read a delimited text export.
type TextOptions struct {
	Delimiter string
	MassCol   int
	IntCol    int
	SkipRows  int
}

// delimiters tried during format guessing, in order of preference.
var delimiters = []string{";", ",", "\t", " "}

// ReadText reads a delimited text export of a mass spectrum. A nil
// opts triggers format guessing: the delimiter, the number of header
// rows and the mass and intensity columns are derived from the first
// lines of the data.
func ReadText(r io.Reader, opts *TextOptions) (*Spectrum, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if opts == nil {
		guessed, err := guessTextOptions(lines)
		if err != nil {
			return nil, err
		}
		opts = &guessed
	}

	var mass, intensity []float64
	for i := opts.SkipRows; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fields := splitFields(line, opts.Delimiter)
		if opts.MassCol >= len(fields) || opts.IntCol >= len(fields) {
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d",
				i+1, max(opts.MassCol, opts.IntCol)+1, len(fields))
		}
		m, err := strconv.ParseFloat(strings.TrimSpace(fields[opts.MassCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad mass %q", i+1, fields[opts.MassCol])
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[opts.IntCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad intensity %q", i+1, fields[opts.IntCol])
		}
		mass = append(mass, m)
		intensity = append(intensity, v)
	}
	if len(mass) == 0 {
		return nil, ErrNoData
	}
	return New(mass, intensity)
}

// guessTextOptions finds the first delimiter that splits a line into
// two or more numeric fields, counts the header rows before it, and
// picks the mass and intensity columns from header names when a header
// row exists.
func guessTextOptions(lines []string) (TextOptions, error) {
	probe := lines
	if len(probe) > 25 {
		probe = probe[:25]
	}
	for row, line := range probe {
		for _, d := range delimiters {
			fields := splitFields(strings.TrimSpace(line), d)
			if numericFields(fields) < 2 {
				continue
			}
			opts := TextOptions{Delimiter: d, MassCol: 0, IntCol: 1, SkipRows: row}
			if row > 0 {
				header := splitFields(strings.TrimSpace(lines[row-1]), d)
				guessColumns(header, &opts)
			}
			return opts, nil
		}
	}
	return TextOptions{}, ErrNoData
}

// guessColumns matches header names against the labels instrument
// software commonly uses for the mass and intensity axes.
func guessColumns(header []string, opts *TextOptions) {
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		switch {
		case strings.Contains(name, "m/z"), strings.Contains(name, "mass"),
			strings.Contains(name, "thompson"):
			opts.MassCol = i
		case strings.Contains(name, "signal"), strings.Contains(name, "intensity"),
			strings.Contains(name, "count"), strings.Contains(name, "cps"):
			opts.IntCol = i
		}
	}
}

func splitFields(line, delimiter string) []string {
	if delimiter == " " {
		return strings.Fields(line)
	}
	return strings.Split(line, delimiter)
}

func numericFields(fields []string) int {
	n := 0
	for _, f := range fields {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
			n++
		}
	}
	return n
}
