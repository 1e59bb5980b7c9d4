// Package ocr implements the contract with the document-intelligence
// service: given its structured table output (or raw content text as a
// fallback) it extracts per-participant scoresheet rows. The analysis
// pipeline itself is external.
package ocr

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoRoster indicates the analysis output contained neither a usable
// table nor fallback-parseable content.
var ErrNoRoster = errors.New("ocr: no roster found in analysis output")

// Cell kinds emitted by the analysis service.
const (
	CellKindColumnHeader = "columnHeader"
	CellKindContent      = "content"
)

// Cell is one extracted table cell.
type Cell struct {
	Kind        string `json:"kind"`
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Content     string `json:"content"`
}

// Table is one extracted table.
type Table struct {
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	Cells       []Cell `json:"cells"`
}

// AnalyzeResult is the structured output returned by the analysis service.
type AnalyzeResult struct {
	Tables  []Table `json:"tables"`
	Content string  `json:"content"`
}

// Extracted is one scoresheet row for the roster-building flow.
type Extracted struct {
	Name       string `json:"name"`
	SitupReps  int    `json:"situpReps"`
	PushupReps int    `json:"pushupReps"`
	RunTime    string `json:"runTime"`
}

// Header keys matched case-insensitively as substrings.
const (
	headerSerial  = "s/n"
	headerName    = "name"
	headerSitups  = "sit-up"
	headerPushups = "push-up"
	headerRun     = "2.4km run"
	headerReps    = "reps"
	headerPts     = "pts"
)

// Data rows start below the two-row station header.
const firstDataRow = 2

var (
	serialLinePattern  = regexp.MustCompile(`^\d{1,2}$`)
	repsLinePattern    = regexp.MustCompile(`^\d{1,3}$`)
	runTimeLinePattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	nameLinePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z' /.-]+$`)
	rankPrefixPattern  = regexp.MustCompile(`^(?i)(PTE|LCP|CPL|CFC|3SG|2SG|1SG|SSG|MSG|3WO|2WO|1WO|2LT|LTA|CPT)\s+`)
)

// Extract pulls scoresheet rows out of the analysis output, preferring the
// table structure and falling back to line scanning of the raw content.
func Extract(result AnalyzeResult) ([]Extracted, error) {
	for _, table := range result.Tables {
		if rows := extractFromTable(table); len(rows) > 0 {
			return rows, nil
		}
	}
	if rows := extractFromContent(result.Content); len(rows) > 0 {
		return rows, nil
	}
	return nil, ErrNoRoster
}

// columnMap resolves header keys onto column indices. Values are -1 when
// the header was not found.
type columnMap struct {
	serial     int
	name       int
	situpReps  int
	pushupReps int
	runTime    int
}

// buildColumnMap walks the header cells. Station headers ("sit-up",
// "push-up") span a reps and a pts sub-column; the reps sub-header nearest
// to the right of the station header carries the raw count.
func buildColumnMap(cells []Cell) columnMap {
	m := columnMap{serial: -1, name: -1, situpReps: -1, pushupReps: -1, runTime: -1}

	situpCol, pushupCol := -1, -1
	var repsCols []int
	for _, cell := range cells {
		if cell.Kind != CellKindColumnHeader {
			continue
		}
		text := strings.ToLower(cell.Content)
		switch {
		case strings.Contains(text, headerSerial):
			if m.serial < 0 {
				m.serial = cell.ColumnIndex
			}
		case strings.Contains(text, headerName):
			if m.name < 0 {
				m.name = cell.ColumnIndex
			}
		case strings.Contains(text, headerSitups):
			situpCol = cell.ColumnIndex
		case strings.Contains(text, headerPushups):
			pushupCol = cell.ColumnIndex
		case strings.Contains(text, headerRun):
			if m.runTime < 0 {
				m.runTime = cell.ColumnIndex
			}
		case strings.Contains(text, headerReps):
			repsCols = append(repsCols, cell.ColumnIndex)
		case strings.Contains(text, headerPts):
			// Points columns are recomputed by the engine; ignored.
		}
	}

	m.situpReps = nearestAtOrAfter(repsCols, situpCol)
	m.pushupReps = nearestAtOrAfter(repsCols, pushupCol)
	if m.situpReps < 0 {
		m.situpReps = situpCol
	}
	if m.pushupReps < 0 {
		m.pushupReps = pushupCol
	}
	return m
}

func nearestAtOrAfter(columns []int, anchor int) int {
	if anchor < 0 {
		return -1
	}
	best := -1
	for _, col := range columns {
		if col < anchor {
			continue
		}
		if best < 0 || col < best {
			best = col
		}
	}
	return best
}

func extractFromTable(table Table) []Extracted {
	columns := buildColumnMap(table.Cells)
	if columns.name < 0 {
		return nil
	}

	rows := make(map[int]map[int]string)
	for _, cell := range table.Cells {
		if cell.Kind != CellKindContent || cell.RowIndex < firstDataRow {
			continue
		}
		if rows[cell.RowIndex] == nil {
			rows[cell.RowIndex] = make(map[int]string)
		}
		rows[cell.RowIndex][cell.ColumnIndex] = strings.TrimSpace(cell.Content)
	}

	maxRow := -1
	for rowIndex := range rows {
		if rowIndex > maxRow {
			maxRow = rowIndex
		}
	}

	var extracted []Extracted
	for rowIndex := firstDataRow; rowIndex <= maxRow; rowIndex++ {
		cells := rows[rowIndex]
		if cells == nil {
			continue
		}
		entry := Extracted{
			Name:       stripRankPrefix(cells[columns.name]),
			SitupReps:  parseReps(cells[columns.situpReps]),
			PushupReps: parseReps(cells[columns.pushupReps]),
			RunTime:    parseRunTimeCell(cells[columns.runTime]),
		}
		if entry.Name == "" && entry.SitupReps == 0 && entry.PushupReps == 0 && entry.RunTime == "" {
			continue
		}
		extracted = append(extracted, entry)
	}
	return extracted
}

// extractFromContent scans raw line output for serial-number-prefixed
// records: a serial line followed by a name line, rep counts in station
// order, and an MM:SS run time, terminated by the next serial.
func extractFromContent(content string) []Extracted {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	var extracted []Extracted
	nextSerial := 1
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if !serialLinePattern.MatchString(line) {
			i++
			continue
		}
		serial, _ := strconv.Atoi(line)
		if serial != nextSerial {
			i++
			continue
		}

		entry := Extracted{}
		repsSeen := 0
		j := i + 1
		for ; j < len(lines); j++ {
			candidate := strings.TrimSpace(lines[j])
			if serialLinePattern.MatchString(candidate) {
				if value, _ := strconv.Atoi(candidate); value == nextSerial+1 {
					break
				}
			}
			switch {
			case entry.Name == "" && nameLinePattern.MatchString(candidate):
				entry.Name = stripRankPrefix(candidate)
			case runTimeLinePattern.MatchString(candidate):
				entry.RunTime = candidate
			case repsLinePattern.MatchString(candidate):
				value, _ := strconv.Atoi(candidate)
				switch repsSeen {
				case 0:
					entry.SitupReps = value
				case 1:
					entry.PushupReps = value
				}
				repsSeen++
			}
		}
		if entry.Name != "" && (entry.SitupReps > 0 || entry.PushupReps > 0 || entry.RunTime != "") {
			extracted = append(extracted, entry)
		}
		nextSerial++
		i = j
	}
	return extracted
}

func stripRankPrefix(value string) string {
	return strings.TrimSpace(rankPrefixPattern.ReplaceAllString(strings.TrimSpace(value), ""))
}

func parseReps(value string) int {
	reps, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || reps < 0 {
		return 0
	}
	return reps
}

func parseRunTimeCell(value string) string {
	trimmed := strings.TrimSpace(value)
	if runTimeLinePattern.MatchString(trimmed) {
		return trimmed
	}
	return ""
}
