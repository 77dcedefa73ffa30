package listing

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/htmltext"
	"github.com/sells-group/schoolscrape/internal/model"
)

// labeled maps the "Label : value" lines of a result item to record fields.
var labeled = []struct {
	label string
	set   func(*model.ListingRecord, string)
}{
	{"Edu. District", func(r *model.ListingRecord, v string) { r.EduDistrict = v }},
	{"Edu. Block", func(r *model.ListingRecord, v string) { r.EduBlock = v }},
	{"Academic Year", func(r *model.ListingRecord, v string) { r.AcademicYear = v }},
	{"School Category", func(r *model.ListingRecord, v string) { r.SchoolCategory = v }},
	{"School Management", func(r *model.ListingRecord, v string) { r.SchoolManagement = v }},
	{"Class", func(r *model.ListingRecord, v string) { r.ClassRange = v }},
	{"School Type", func(r *model.ListingRecord, v string) { r.SchoolType = v }},
	{"School Location", func(r *model.ListingRecord, v string) { r.SchoolLocation = v }},
	{"Address", func(r *model.ListingRecord, v string) { r.Address = v }},
	{"PIN Code", func(r *model.ListingRecord, v string) { r.PinCode = v }},
}

// ParseItem turns one result item into a ListingRecord. resolve maps the
// raw "Know More" href to an absolute URL. Unparseable parts become NA;
// only an item with no name, code or link is rejected.
func ParseItem(el browser.Element, resolve func(string) string) (model.ListingRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(el.HTML))
	if err != nil {
		return model.ListingRecord{}, eris.Wrap(err, "listing: parse item")
	}
	root := doc.Selection

	var rec model.ListingRecord
	rec.UDISECode = htmltext.Text(root.Find(".udiseCode"))
	rec.OperationalStatus = htmltext.Text(root.Find(".OperationalStatus"))
	rec.SchoolName = htmltext.Text(root.Find("h4.custom-word-break"))
	if rec.SchoolName == "" {
		rec.SchoolName = htmltext.Text(root.Find("h4"))
	}
	rec.LastModified = strings.TrimSpace(strings.TrimPrefix(htmltext.Text(root.Find(".lastModifiedTime")), "Last Modified:"))

	href, _ := root.Find("a.blueBtn").First().Attr("href")
	href = strings.TrimSpace(href)

	lines := htmltext.Lines(root)
	for _, f := range labeled {
		if v, ok := htmltext.Lookup(lines, f.label, isLabelLine); ok {
			f.set(&rec, v)
		}
	}

	if rec.SchoolName == "" && rec.UDISECode == "" && href == "" {
		return model.ListingRecord{}, ErrUnusableItem
	}
	if href != "" && resolve != nil {
		href = resolve(href)
	}
	rec.Link(href)
	return rec, nil
}

func isLabelLine(line string) bool {
	for _, f := range labeled {
		if _, ok := htmltext.CutLabel(line, f.label); ok {
			return true
		}
	}
	return false
}
