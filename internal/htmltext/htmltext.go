// Package htmltext reads labeled values out of rendered HTML fragments.
// Portal pages print most facts as "Label : value" or as a label element
// followed by a value element; Lines flattens a fragment into the lines a
// browser would show so Lookup can find them.
package htmltext

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var blockElements = map[string]bool{
	"div": true, "p": true, "li": true, "ul": true, "ol": true, "br": true,
	"tr": true, "td": true, "th": true, "table": true, "section": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// Collapse trims s and folds internal whitespace runs to single spaces.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Text returns the collapsed text of the first element of s.
func Text(s *goquery.Selection) string {
	return Collapse(s.First().Text())
}

// Lines renders sel's text one block element per line, skipping blank
// lines, scripts and styles.
func Lines(sel *goquery.Selection) []string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			name := goquery.NodeName(c)
			switch name {
			case "#text":
				b.WriteString(c.Text())
			case "script", "style", "#comment":
			default:
				block := blockElements[name]
				if block {
					b.WriteByte('\n')
				}
				walk(c)
				if block {
					b.WriteByte('\n')
				}
			}
		})
	}
	walk(sel)

	var lines []string
	for _, l := range strings.Split(b.String(), "\n") {
		if l = Collapse(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Lookup finds the first line starting with label and returns the text
// after it, minus a leading colon. A label alone on its line takes its
// value from the next line, unless isLabel reports that line is itself a
// label.
func Lookup(lines []string, label string, isLabel func(string) bool) (string, bool) {
	for i, line := range lines {
		rest, ok := CutLabel(line, label)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(strings.TrimLeft(rest, ": "))
		if rest == "" && i+1 < len(lines) && (isLabel == nil || !isLabel(lines[i+1])) {
			rest = strings.TrimSpace(strings.TrimLeft(lines[i+1], ": "))
		}
		if rest == "" {
			return "", false
		}
		return rest, true
	}
	return "", false
}

// CutLabel matches label case-insensitively at the start of line and
// returns the remainder. The character after the label must not be a
// letter, so "Class" does not match "Classification".
func CutLabel(line, label string) (string, bool) {
	if len(line) < len(label) || !strings.EqualFold(line[:len(label)], label) {
		return "", false
	}
	rest := line[len(label):]
	if rest != "" && unicode.IsLetter([]rune(rest)[0]) {
		return "", false
	}
	return rest, true
}

// NormalizeLabel lower-cases a label, folds whitespace and drops trailing
// periods and colons, so "Affiliation Board Sec.:" and
// "affiliation board sec" compare equal.
func NormalizeLabel(s string) string {
	return strings.TrimRight(strings.ToLower(Collapse(s)), ".: ")
}
