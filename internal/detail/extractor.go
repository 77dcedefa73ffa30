// Package detail implements Phase 2: visit each eligible school's detail
// page and enrich its listing record with the fields found there.
package detail

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/htmltext"
	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/resilience"
)

// Classify maps the number of populated enriched fields to a status:
// none is FAILED, more than half is SUCCESS, anything else PARTIAL.
func Classify(populated, total int) model.ExtractionStatus {
	switch {
	case populated <= 0:
		return model.StatusFailed
	case 2*populated > total:
		return model.StatusSuccess
	default:
		return model.StatusPartial
	}
}

// Config tunes the extractor.
type Config struct {
	// Policy governs navigation: load, reload and the ready wait.
	Policy resilience.Policy
	// ReadySelector marks a rendered detail page. Default: ".innerPad".
	ReadySelector string
	// NameSelector lists candidate headings for the school name.
	NameSelector string
	ReadyTimeout time.Duration
	PollInterval time.Duration
}

// Extractor produces DetailRecords. It drives the shared navigation
// session and must not be used concurrently.
type Extractor struct {
	nav browser.Navigator
	cfg Config
	now func() time.Time
	log *zap.Logger
}

// New creates an Extractor over nav.
func New(nav browser.Navigator, cfg Config) *Extractor {
	if cfg.ReadySelector == "" {
		cfg.ReadySelector = ".innerPad"
	}
	if cfg.NameSelector == "" {
		cfg.NameSelector = ".schoolName, h1, h2, h3"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Extractor{
		nav: nav,
		cfg: cfg,
		now: time.Now,
		log: zap.L().With(zap.String("component", "detail")),
	}
}

// Extract enriches one listing record. It never returns an error: a
// navigation failure yields a FAILED record carrying the reason, and a
// field that cannot be read stays NA.
func (e *Extractor) Extract(ctx context.Context, listing model.ListingRecord) model.DetailRecord {
	d := model.NewDetailRecord(listing)
	d.FieldsTotal = len(EnrichedFields)
	d.DetailExtractedAt = e.now()
	log := e.log.With(zap.String("udise_code", listing.UDISECode), zap.String("url", listing.KnowMoreLink))

	if !listing.EligibleForDetail() {
		d.DetailSchoolName = fallbackName(listing)
		d.FailureReason = "no valid reference link"
		return d
	}

	doc, err := resilience.DoVal(ctx, e.cfg.Policy, e.nav, "load detail page",
		func(ctx context.Context) (*goquery.Document, error) {
			return e.open(ctx, listing.KnowMoreLink)
		})
	if err != nil {
		log.Warn("detail page unavailable", zap.Error(err))
		d.DetailSchoolName = fallbackName(listing)
		d.FailureReason = err.Error()
		return d
	}

	for _, f := range EnrichedFields {
		v, err := f.extract(doc)
		if err != nil {
			if !errors.Is(err, ErrFieldSkip) {
				log.Debug("field not extracted", zap.String("field", f.Name), zap.Error(err))
			}
			continue
		}
		f.set(&d, v)
	}

	d.DetailSchoolName = e.schoolName(doc, listing)
	d.FieldsPopulated = Populated(d)
	d.Status = Classify(d.FieldsPopulated, d.FieldsTotal)
	if d.Status == model.StatusFailed {
		d.FailureReason = "no enriched fields found on page"
	}

	if model.CountMismatch(d.TotalStudents, d.TotalBoys, d.TotalGirls) {
		log.Debug("student counts do not add up",
			zap.Int("total", d.TotalStudents.N), zap.Int("boys", d.TotalBoys.N), zap.Int("girls", d.TotalGirls.N))
	}
	if model.CountMismatch(d.TotalTeachers, d.MaleTeachers, d.FemaleTeachers) {
		log.Debug("teacher counts do not add up",
			zap.Int("total", d.TotalTeachers.N), zap.Int("male", d.MaleTeachers.N), zap.Int("female", d.FemaleTeachers.N))
	}
	return d
}

// open loads url, reloads it once (the portal renders stale content on
// first load), waits for the detail view and snapshots the document.
func (e *Extractor) open(ctx context.Context, url string) (*goquery.Document, error) {
	if err := e.nav.Load(ctx, url); err != nil {
		return nil, err
	}
	if err := e.nav.Reload(ctx); err != nil {
		return nil, eris.Wrap(err, "detail: reload")
	}
	err := resilience.WaitUntil(ctx, e.cfg.ReadyTimeout, e.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		return e.nav.Exists(ctx, e.cfg.ReadySelector)
	})
	if err != nil {
		return nil, eris.Wrap(err, "detail: wait for page")
	}

	els, err := e.nav.Elements(ctx, "html")
	if err != nil {
		return nil, eris.Wrap(err, "detail: snapshot page")
	}
	if len(els) == 0 {
		return nil, eris.Wrap(browser.ErrNoElement, "detail: snapshot page")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(els[0].HTML))
	if err != nil {
		return nil, eris.Wrap(err, "detail: parse page")
	}
	return doc, nil
}

var genericTitles = []string{"know your school", "udise", "dashboard", "menu", "search"}

// schoolName prefers a heading on the page, then the listing's name, then
// a placeholder built from the school id in the URL.
func (e *Extractor) schoolName(doc *goquery.Document, listing model.ListingRecord) string {
	var name string
	doc.Find(e.cfg.NameSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := htmltext.Collapse(s.Text()); plausibleName(t) {
			name = t
			return false
		}
		return true
	})
	if name != "" {
		return name
	}
	if t := htmltext.Text(doc.Find("title")); plausibleName(t) {
		return t
	}
	return fallbackName(listing)
}

func plausibleName(s string) bool {
	if len(s) <= 5 || len(s) >= 200 {
		return false
	}
	lower := strings.ToLower(s)
	for _, g := range genericTitles {
		if strings.Contains(lower, g) {
			return false
		}
	}
	return true
}

var schoolIDPattern = regexp.MustCompile(`/(\d+)/\d+/?$`)

func fallbackName(listing model.ListingRecord) string {
	if !model.IsNA(listing.SchoolName) {
		return listing.SchoolName
	}
	if m := schoolIDPattern.FindStringSubmatch(listing.KnowMoreLink); m != nil {
		return "School_ID_" + m[1]
	}
	return model.NA
}
