package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

type section int

const (
	sectionNone section = iota
	sectionSettings
	sectionVariables
	sectionTests
	sectionKeywords
	sectionComments
)

var (
	cellSepRe = regexp.MustCompile(`\t+| {2,}\t*|\t* {2,}`)
	pipeSepRe = regexp.MustCompile(`\s+\|\s+`)
)

// row is one logical data row. The first segment holds the cells of the
// physical line, every "..." continuation line adds another segment.
type row [][]string

func (r row) cells() []string {
	var out []string
	for _, seg := range r {
		out = append(out, seg...)
	}
	return out
}

type keywordDef struct {
	name string
	body []row
}

// robotFile is the table structure of a plain-text Robot Framework file.
type robotFile struct {
	hasTests  bool
	settings  []row
	variables []row
	keywords  []*keywordDef
}

// parseRobot splits data into its tables. Test case bodies are skipped;
// only the presence of a test or task table is recorded.
func parseRobot(data []byte) *robotFile {
	f := &robotFile{}
	current := sectionNone
	var kw *keywordDef

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		cells := splitCells(sc.Text())
		if len(cells) == 0 {
			continue
		}
		if s, ok := headerSection(cells[0]); ok {
			current = s
			kw = nil
			if s == sectionTests {
				f.hasTests = true
			}
			continue
		}

		switch current {
		case sectionSettings:
			f.settings = appendRow(f.settings, trimLeading(cells))
		case sectionVariables:
			f.variables = appendRow(f.variables, trimLeading(cells))
		case sectionKeywords:
			if cells[0] != "" {
				kw = &keywordDef{name: cells[0]}
				f.keywords = append(f.keywords, kw)
				if rest := cells[1:]; len(rest) > 0 {
					kw.body = append(kw.body, row{rest})
				}
				continue
			}
			if kw != nil {
				kw.body = appendRow(kw.body, trimLeading(cells))
			}
		}
	}
	return f
}

// appendRow adds cells as a new row, or extends the previous row when the
// line is a "..." continuation.
func appendRow(rows []row, cells []string) []row {
	if len(cells) == 0 {
		return rows
	}
	if cells[0] == "..." {
		if len(rows) == 0 {
			return rows
		}
		last := len(rows) - 1
		rows[last] = append(rows[last], cells[1:])
		return rows
	}
	return append(rows, row{cells})
}

// splitCells tokenizes one line in space separated or pipe separated
// format. A leading empty cell marks an indented line. Comments are dropped.
func splitCells(line string) []string {
	line = strings.TrimRight(line, " \t\r\n")
	if line == "" {
		return nil
	}

	var cells []string
	if strings.HasPrefix(line, "| ") || line == "|" {
		inner := strings.TrimPrefix(line, "|")
		inner = strings.TrimSuffix(inner, " |")
		cells = pipeSepRe.Split(" "+inner, -1)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
	} else {
		cells = cellSepRe.Split(line, -1)
		if strings.HasPrefix(line, " ") && cells[0] != "" {
			// A single leading space is still an indented line.
			cells = append([]string{"", strings.TrimSpace(cells[0])}, cells[1:]...)
		}
	}

	out := cells[:0]
	for i, c := range cells {
		if strings.HasPrefix(c, "#") {
			break
		}
		if c == "" && i > 0 {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

func trimLeading(cells []string) []string {
	for len(cells) > 0 && cells[0] == "" {
		cells = cells[1:]
	}
	return cells
}

// headerSection recognises table headers such as "*** Settings ***" or
// "*Keyword*", case-insensitively and in singular or plural form.
func headerSection(cell string) (section, bool) {
	if !strings.HasPrefix(cell, "*") {
		return sectionNone, false
	}
	name := strings.ToLower(strings.TrimSpace(strings.Trim(cell, "* ")))
	switch name {
	case "setting", "settings", "metadata":
		return sectionSettings, true
	case "variable", "variables":
		return sectionVariables, true
	case "test case", "test cases", "task", "tasks":
		return sectionTests, true
	case "keyword", "keywords", "user keyword", "user keywords":
		return sectionKeywords, true
	case "comment", "comments":
		return sectionComments, true
	}
	return sectionNone, true
}

// normalizeSetting lower-cases a setting name and drops a trailing colon
// and the brackets around keyword settings.
func normalizeSetting(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, ":")
	name = strings.TrimPrefix(name, "[")
	name = strings.TrimSuffix(name, "]")
	return strings.TrimSpace(name)
}
