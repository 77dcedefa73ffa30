// Package model defines the records produced by the two extraction phases
// and the region hierarchy they are extracted from.
package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NA marks a field that could not be extracted.
const NA = "N/A"

// Region is a top-level administrative unit (a state or union territory).
// One region drives one Phase 1 + Phase 2 cycle.
type Region struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// Slug returns the file-name prefix used for this region's output files.
func (r Region) Slug() string {
	return Slug(r.Name)
}

// SubRegion is a district discovered inside a region at run time.
type SubRegion struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Parent Region `json:"parent"`
}

// Slug normalizes a region name for use in file names: upper-cased,
// spaces and slashes become underscores and "&" becomes "AND".
func Slug(name string) string {
	r := strings.NewReplacer(" ", "_", "&", "and", "/", "_")
	// A Caser is stateful, so one is built per call.
	return cases.Upper(language.Und).String(r.Replace(strings.TrimSpace(name)))
}

// OrNA returns s trimmed, or NA when s is blank.
func OrNA(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NA
	}
	return s
}

// IsNA reports whether a field value is missing.
func IsNA(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, NA)
}
