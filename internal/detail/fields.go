package detail

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/schoolscrape/internal/htmltext"
	"github.com/sells-group/schoolscrape/internal/model"
)

// ErrFieldSkip reports that a field is absent from the page. It is never
// surfaced; the field stays NA.
var ErrFieldSkip = eris.New("detail: field not present")

// Field is one enriched attribute of a DetailRecord: how to read it from
// a detail page and where it lands on the record.
type Field struct {
	Name    string
	extract func(doc *goquery.Document) (string, error)
	set     func(d *model.DetailRecord, v string)
	get     func(d model.DetailRecord) string
}

// EnrichedFields is the enriched field set, in output column order. Its
// length is the fields_total of every DetailRecord.
var EnrichedFields = []Field{
	infoField("academic_year_detail", "Academic Year",
		func(d *model.DetailRecord) *string { return &d.AcademicYear }),
	infoField("location", "Location",
		func(d *model.DetailRecord) *string { return &d.Location }),
	infoField("school_category_detail", "School Category",
		func(d *model.DetailRecord) *string { return &d.SchoolCategory }),
	infoField("school_type_detail", "School Type",
		func(d *model.DetailRecord) *string { return &d.SchoolType }),
	infoField("class_from", "Class From",
		func(d *model.DetailRecord) *string { return &d.ClassFrom }),
	infoField("class_to", "Class To",
		func(d *model.DetailRecord) *string { return &d.ClassTo }),
	infoField("year_of_establishment", "Year of Establishment",
		func(d *model.DetailRecord) *string { return &d.YearOfEstablishment }),
	infoField("national_management", "National Management",
		func(d *model.DetailRecord) *string { return &d.NationalManagement }),
	infoField("state_management", "State Management",
		func(d *model.DetailRecord) *string { return &d.StateManagement }),
	infoField("affiliation_board_sec", "Affiliation Board Sec.",
		func(d *model.DetailRecord) *string { return &d.AffiliationBoardSec }),
	infoField("affiliation_board_hsec", "Affiliation Board HSec.",
		func(d *model.DetailRecord) *string { return &d.AffiliationBoardHSec }),

	countField("total_students", 0, isTotalStudents,
		func(d *model.DetailRecord) *model.Count { return &d.TotalStudents }),
	countField("total_boys", 1, isBoys,
		func(d *model.DetailRecord) *model.Count { return &d.TotalBoys }),
	countField("total_girls", 2, isGirls,
		func(d *model.DetailRecord) *model.Count { return &d.TotalGirls }),
	countField("total_teachers", 3, isTotalTeachers,
		func(d *model.DetailRecord) *model.Count { return &d.TotalTeachers }),
	countField("male_teachers", 4, isMaleTeachers,
		func(d *model.DetailRecord) *model.Count { return &d.MaleTeachers }),
	countField("female_teachers", 5, isFemaleTeachers,
		func(d *model.DetailRecord) *model.Count { return &d.FemaleTeachers }),
}

// Populated counts the enriched fields of d that are not NA.
func Populated(d model.DetailRecord) int {
	n := 0
	for _, f := range EnrichedFields {
		if !model.IsNA(f.get(d)) {
			n++
		}
	}
	return n
}

func infoField(name, label string, ptr func(*model.DetailRecord) *string) Field {
	return Field{
		Name:    name,
		extract: func(doc *goquery.Document) (string, error) { return infoValue(doc, label) },
		set:     func(d *model.DetailRecord, v string) { *ptr(d) = v },
		get:     func(d model.DetailRecord) string { return *ptr(&d) },
	}
}

func countField(name string, position int, match func(countLabel) bool, ptr func(*model.DetailRecord) *model.Count) Field {
	return Field{
		Name:    name,
		extract: func(doc *goquery.Document) (string, error) { return countValue(doc, position, match) },
		set:     func(d *model.DetailRecord, v string) { *ptr(d) = model.ParseCount(v) },
		get:     func(d model.DetailRecord) string { return ptr(&d).String() },
	}
}

// infoValue reads a basic-details cell. Cells are either structured,
// <div class="schoolInfoCol"><div class="title">Label</div><div class="blueCol">value</div></div>,
// or free text of the form "Label : value".
func infoValue(doc *goquery.Document, label string) (string, error) {
	want := htmltext.NormalizeLabel(label)
	var value string
	doc.Find(".schoolInfoCol").EachWithBreak(func(_ int, col *goquery.Selection) bool {
		if title := col.Find(".title"); title.Length() > 0 {
			if htmltext.NormalizeLabel(title.Text()) != want {
				return true
			}
			value = htmltext.Text(col.Find(".blueCol"))
			return false
		}
		if v, ok := htmltext.Lookup(htmltext.Lines(col), label, nil); ok {
			value = v
			return false
		}
		return true
	})
	if missing(value) {
		return "", ErrFieldSkip
	}
	return value, nil
}

func missing(v string) bool {
	return model.IsNA(v) || strings.EqualFold(strings.TrimSpace(v), "NA")
}

// countLabel is one aggregate figure with the label text around it.
type countLabel struct {
	label string
	value string
	// teachers is set once any label at or before this one mentions
	// teachers; later "Male"/"Female" figures belong to that section.
	teachers bool
}

// countLabels lists the .H3Value figures in page order. A figure's label
// is its parent's text with the figure itself removed.
func countLabels(doc *goquery.Document) []countLabel {
	var out []countLabel
	teachers := false
	doc.Find(".H3Value").Each(func(_ int, s *goquery.Selection) {
		raw := s.Text()
		label := strings.ToLower(htmltext.Collapse(strings.Replace(s.Parent().Text(), raw, "", 1)))
		if strings.Contains(label, "teacher") {
			teachers = true
		}
		out = append(out, countLabel{label: label, value: htmltext.Collapse(raw), teachers: teachers})
	})
	return out
}

// countValue finds the figure whose label satisfies match. Pages whose
// figures carry no labels at all list students (total, boys, girls) then
// teachers (total, male, female); position indexes that layout.
func countValue(doc *goquery.Document, position int, match func(countLabel) bool) (string, error) {
	labels := countLabels(doc)
	labeledAny := false
	for _, c := range labels {
		if c.label != "" {
			labeledAny = true
		}
		if match(c) {
			return checkCount(c.value)
		}
	}
	if !labeledAny && len(labels) >= 6 {
		return checkCount(labels[position].value)
	}
	return "", ErrFieldSkip
}

func checkCount(v string) (string, error) {
	if !model.ParseCount(v).Valid {
		return "", ErrFieldSkip
	}
	return v, nil
}

func isTotalStudents(c countLabel) bool {
	return strings.Contains(c.label, "total students") ||
		(strings.Contains(c.label, "total") && strings.Contains(c.label, "student"))
}

func isBoys(c countLabel) bool {
	return strings.Contains(c.label, "boys") && !strings.Contains(c.label, "total")
}

func isGirls(c countLabel) bool {
	return strings.Contains(c.label, "girls") && !strings.Contains(c.label, "total")
}

func isTotalTeachers(c countLabel) bool {
	return strings.Contains(c.label, "total teachers") ||
		(strings.Contains(c.label, "total") && strings.Contains(c.label, "teacher"))
}

func isMaleTeachers(c countLabel) bool {
	return strings.Contains(c.label, "male") && !strings.Contains(c.label, "female") && c.teachers &&
		!strings.Contains(c.label, "total")
}

func isFemaleTeachers(c countLabel) bool {
	return strings.Contains(c.label, "female") && c.teachers && !strings.Contains(c.label, "total")
}
