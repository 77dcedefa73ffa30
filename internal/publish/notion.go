// Package publish mirrors flushed Phase 2 batches into an external
// tabular store. The CSV files stay the source of truth.
package publish

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/model"
)

// Property names of the target Notion database.
const (
	PropName       = "School Name"
	PropCode       = "UDISE Code"
	PropState      = "State"
	PropDistrict   = "District"
	PropCategory   = "School Category"
	PropManagement = "Management"
	PropClasses    = "Classes"
	PropEstablish  = "Established"
	PropStudents   = "Total Students"
	PropTeachers   = "Total Teachers"
	PropStatus     = "Extraction Status"
	PropPopulated  = "Fields Populated"
	PropLink       = "Detail URL"
)

// NotionPublisher upserts detail records into the schools table keyed by
// UDISE code. Records without a code are always created.
type NotionPublisher struct {
	table Table
	log   *zap.Logger
}

// NewNotionPublisher creates a publisher writing to table.
func NewNotionPublisher(table Table) *NotionPublisher {
	return &NotionPublisher{
		table: table,
		log:   zap.L().With(zap.String("component", "publish")),
	}
}

// Publish upserts every record. A failing record does not stop the rest;
// the first error is returned with the failure count.
func (p *NotionPublisher) Publish(ctx context.Context, region model.Region, recs []model.DetailRecord) error {
	var (
		firstErr         error
		failed           int
		created, updated int
	)
	for _, d := range recs {
		isNew, err := p.UpsertSchool(ctx, d)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	p.log.Info("batch published",
		zap.String("region", region.Name),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("failed", failed),
	)
	if firstErr != nil {
		return eris.Wrapf(firstErr, "publish: %d of %d records failed for %s", failed, len(recs), region.Name)
	}
	return nil
}

// UpsertSchool writes one record and reports whether a new row was made.
func (p *NotionPublisher) UpsertSchool(ctx context.Context, d model.DetailRecord) (bool, error) {
	props := Properties(d)
	code := d.Listing.UDISECode

	if !model.IsNA(code) {
		pageID, err := p.table.FindByCode(ctx, code)
		if err != nil {
			return false, err
		}
		if pageID != "" {
			return false, p.table.UpdateSchool(ctx, pageID, props)
		}
	}
	return true, p.table.CreateSchool(ctx, props)
}

// Properties maps a detail record onto the table columns. Missing counts
// are left out rather than written as zero.
func Properties(d model.DetailRecord) notionapi.Properties {
	name := d.DetailSchoolName
	if model.IsNA(name) {
		name = d.Listing.SchoolName
	}
	props := notionapi.Properties{
		PropName:       titleProp(name),
		PropCode:       textProp(d.Listing.UDISECode),
		PropState:      textProp(d.Listing.State),
		PropDistrict:   textProp(d.Listing.District),
		PropCategory:   textProp(d.SchoolCategory),
		PropManagement: textProp(d.StateManagement),
		PropClasses:    textProp(d.ClassRange()),
		PropEstablish:  textProp(d.YearOfEstablishment),
		PropStatus:     selectProp(string(d.Status)),
		PropPopulated:  numberProp(d.FieldsPopulated),
	}
	if d.TotalStudents.Valid {
		props[PropStudents] = numberProp(d.TotalStudents.N)
	}
	if d.TotalTeachers.Valid {
		props[PropTeachers] = numberProp(d.TotalTeachers.N)
	}
	if model.ValidReferenceLink(d.SourceURL) {
		props[PropLink] = notionapi.URLProperty{URL: d.SourceURL}
	}
	return props
}
