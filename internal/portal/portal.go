// Package portal knows the shape of the school portal: which controls
// select a state and district, where results and the next-page control
// live, and how option values encode region identifiers. It drives a
// browser.Navigator and never parses HTML itself.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/resilience"
)

// Selectors are the CSS selectors of the portal's controls.
type Selectors struct {
	AdvanceSearch   string `mapstructure:"advance_search" yaml:"advance_search"`
	RegionSelect    string `mapstructure:"region_select" yaml:"region_select"`
	SubRegionSelect string `mapstructure:"sub_region_select" yaml:"sub_region_select"`
	SearchButton    string `mapstructure:"search_button" yaml:"search_button"`
	PageSizeSelect  string `mapstructure:"page_size_select" yaml:"page_size_select"`
	ResultItem      string `mapstructure:"result_item" yaml:"result_item"`
	NoResults       string `mapstructure:"no_results" yaml:"no_results"`
	NextButton      string `mapstructure:"next_button" yaml:"next_button"`
	DetailReady     string `mapstructure:"detail_ready" yaml:"detail_ready"`
}

// DefaultSelectors returns the selectors of the live portal.
func DefaultSelectors() Selectors {
	return Selectors{
		AdvanceSearch:   "a#advanceSearch",
		RegionSelect:    `select.form-select.select:has(option:contains("State"))`,
		SubRegionSelect: `select.form-select.select:has(option:contains("District"))`,
		SearchButton:    "button.purpleBtn",
		PageSizeSelect:  "select.form-select.w11110",
		ResultItem:      ".accordion-body",
		NoResults:       ".noRecordFound",
		NextButton:      "a.nextBtn",
		DetailReady:     ".innerPad",
	}
}

// Config configures a Portal.
type Config struct {
	EntryURL      string
	DetailBaseURL string
	Selectors     Selectors
	// ReadyTimeout bounds each condition wait (controls present, results
	// rendered). Default: 15s.
	ReadyTimeout time.Duration
	PollInterval time.Duration
}

// NextState is the observed state of the next-page control.
type NextState int

const (
	NextAbsent NextState = iota
	NextDisabled
	NextEnabled
)

func (s NextState) String() string {
	switch s {
	case NextAbsent:
		return "absent"
	case NextDisabled:
		return "disabled"
	case NextEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// ErrNoSubRegions is returned when a region's district dropdown stays empty.
var ErrNoSubRegions = eris.New("portal: sub-region selector has no options")

// Portal drives one navigation session against the portal.
type Portal struct {
	nav browser.Navigator
	cfg Config
	log *zap.Logger
}

// New creates a Portal over nav. Unset selectors fall back to the defaults.
func New(nav browser.Navigator, cfg Config) *Portal {
	cfg.Selectors = withDefaults(cfg.Selectors)
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Portal{
		nav: nav,
		cfg: cfg,
		log: zap.L().With(zap.String("component", "portal")),
	}
}

// Navigator returns the session the portal drives.
func (p *Portal) Navigator() browser.Navigator { return p.nav }

// Selectors returns the effective selectors.
func (p *Portal) Selectors() Selectors { return p.cfg.Selectors }

// Open loads the entry page and brings up the search view.
func (p *Portal) Open(ctx context.Context) error {
	if err := p.nav.Load(ctx, p.cfg.EntryURL); err != nil {
		return eris.Wrap(err, "portal: load entry page")
	}
	if p.cfg.Selectors.AdvanceSearch != "" {
		if ok, _ := p.nav.Exists(ctx, p.cfg.Selectors.AdvanceSearch); ok {
			if err := p.nav.Click(ctx, p.cfg.Selectors.AdvanceSearch); err != nil {
				return eris.Wrap(err, "portal: open advanced search")
			}
		}
	}
	return p.waitFor(ctx, p.cfg.Selectors.RegionSelect)
}

// Regions reads the state dropdown of an opened search view, in the
// portal's order.
func (p *Portal) Regions(ctx context.Context) ([]model.Region, error) {
	opts, err := p.options(ctx, p.cfg.Selectors.RegionSelect)
	if err != nil {
		return nil, eris.Wrap(err, "portal: read regions")
	}
	out := make([]model.Region, 0, len(opts))
	for _, o := range opts {
		out = append(out, model.Region{Name: o.name, ID: o.id})
	}
	return out, nil
}

// SubRegions opens the search view, selects region and returns its
// districts in dropdown order.
func (p *Portal) SubRegions(ctx context.Context, region model.Region) ([]model.SubRegion, error) {
	opts, err := p.prepare(ctx, region)
	if err != nil {
		return nil, err
	}
	out := make([]model.SubRegion, 0, len(opts))
	for _, o := range opts {
		out = append(out, model.SubRegion{Name: o.name, ID: o.id, Parent: region})
	}
	return out, nil
}

// PrepareRegion reopens the search view with region selected, ready for
// Search. It restores the form after results pages have replaced it.
func (p *Portal) PrepareRegion(ctx context.Context, region model.Region) error {
	_, err := p.prepare(ctx, region)
	return err
}

// SearchReady reports whether the district dropdown is on the page.
func (p *Portal) SearchReady(ctx context.Context) (bool, error) {
	return p.nav.Exists(ctx, p.cfg.Selectors.SubRegionSelect)
}

func (p *Portal) prepare(ctx context.Context, region model.Region) ([]option, error) {
	if err := p.Open(ctx); err != nil {
		return nil, err
	}
	if err := p.choose(ctx, p.cfg.Selectors.RegionSelect, region.ID, region.Name); err != nil {
		return nil, eris.Wrapf(err, "portal: select region %s", region.Name)
	}

	var opts []option
	err := resilience.WaitUntil(ctx, p.cfg.ReadyTimeout, p.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		var err error
		opts, err = p.options(ctx, p.cfg.Selectors.SubRegionSelect)
		return len(opts) > 0, err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrWaitTimeout) {
			return nil, eris.Wrapf(ErrNoSubRegions, "region %s: %v", region.Name, err)
		}
		return nil, err
	}
	return opts, nil
}

// Search selects sub in the district dropdown and submits the search.
func (p *Portal) Search(ctx context.Context, sub model.SubRegion) error {
	if err := p.choose(ctx, p.cfg.Selectors.SubRegionSelect, sub.ID, sub.Name); err != nil {
		return eris.Wrapf(err, "portal: select sub-region %s", sub.Name)
	}
	if err := p.nav.Click(ctx, p.cfg.Selectors.SearchButton); err != nil {
		return eris.Wrap(err, "portal: click search")
	}
	return nil
}

// SetPageSize picks n results per page when the portal offers it.
func (p *Portal) SetPageSize(ctx context.Context, n int) error {
	if p.cfg.Selectors.PageSizeSelect == "" {
		return nil
	}
	if err := p.nav.Select(ctx, p.cfg.Selectors.PageSizeSelect, strconv.Itoa(n)); err != nil {
		return eris.Wrapf(err, "portal: set page size %d", n)
	}
	return nil
}

// WaitResults blocks until result items or the empty-results marker are
// rendered. It reports whether any items are present.
func (p *Portal) WaitResults(ctx context.Context) (bool, error) {
	var found bool
	err := resilience.WaitUntil(ctx, p.cfg.ReadyTimeout, p.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		ok, err := p.nav.Exists(ctx, p.cfg.Selectors.ResultItem)
		if err != nil {
			return false, err
		}
		if ok {
			found = true
			return true, nil
		}
		if p.cfg.Selectors.NoResults == "" {
			return false, nil
		}
		return p.nav.Exists(ctx, p.cfg.Selectors.NoResults)
	})
	if err != nil {
		return false, eris.Wrap(err, "portal: wait for results")
	}
	return found, nil
}

// Items snapshots the result items on the current page.
func (p *Portal) Items(ctx context.Context) ([]browser.Element, error) {
	items, err := p.nav.Elements(ctx, p.cfg.Selectors.ResultItem)
	if err != nil {
		return nil, eris.Wrap(err, "portal: read items")
	}
	return items, nil
}

// NextControl inspects the next-page control. The control counts as
// disabled when it or its parent carries a "disabled" class, or it has a
// disabled or aria-disabled="true" attribute.
func (p *Portal) NextControl(ctx context.Context) (NextState, error) {
	els, err := p.nav.Elements(ctx, p.cfg.Selectors.NextButton)
	if err != nil {
		return NextAbsent, eris.Wrap(err, "portal: inspect next control")
	}
	if len(els) == 0 {
		return NextAbsent, nil
	}
	next := els[0]
	if next.ParentHasClass("disabled") || next.HasClass("disabled") ||
		next.HasAttr("disabled") || strings.EqualFold(next.Attr("aria-disabled"), "true") {
		return NextDisabled, nil
	}
	return NextEnabled, nil
}

// Advance clicks the next-page control.
func (p *Portal) Advance(ctx context.Context) error {
	if err := p.nav.Click(ctx, p.cfg.Selectors.NextButton); err != nil {
		return eris.Wrap(err, "portal: advance")
	}
	return nil
}

// Signature fingerprints the result items on the current page.
func (p *Portal) Signature(ctx context.Context) (string, error) {
	return p.nav.PageSignature(ctx, p.cfg.Selectors.ResultItem)
}

// Reload refreshes the current view.
func (p *Portal) Reload(ctx context.Context) error {
	return p.nav.Reload(ctx)
}

// ResolveLink turns a scraped "Know More" href into an absolute URL.
// Hash-route links ("#/...") are relative to the detail site.
func (p *Portal) ResolveLink(href string) string {
	return ResolveLink(p.cfg.DetailBaseURL, href)
}

// ResolveLink resolves href against base when it is a hash route.
func ResolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "#/") && base != "" {
		return strings.TrimRight(base, "/") + "/" + href
	}
	return href
}

func (p *Portal) waitFor(ctx context.Context, selector string) error {
	err := resilience.WaitUntil(ctx, p.cfg.ReadyTimeout, p.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		return p.nav.Exists(ctx, selector)
	})
	return eris.Wrapf(err, "portal: wait for %q", selector)
}

// choose selects by id first, then by visible name.
func (p *Portal) choose(ctx context.Context, selector, id, name string) error {
	if id != "" {
		err := p.nav.Select(ctx, selector, id)
		if err == nil || !errors.Is(err, browser.ErrNoOption) {
			return err
		}
	}
	return p.nav.Select(ctx, selector, name)
}

type option struct {
	id   string
	name string
}

// options reads a dropdown, skipping placeholder entries. Option values
// are either plain ids or JSON objects such as
// {"stateId":9,"stateName":"UTTAR PRADESH"}.
func (p *Portal) options(ctx context.Context, selector string) ([]option, error) {
	els, err := p.nav.Elements(ctx, selector+" option")
	if err != nil {
		return nil, err
	}
	var out []option
	for _, el := range els {
		value := strings.TrimSpace(el.Attr("value"))
		if value == "" {
			continue
		}
		id, name := parseOptionValue(value)
		if text := strings.TrimSpace(el.Text); text != "" {
			name = text
		}
		if name == "" || strings.HasPrefix(strings.ToLower(name), "select") {
			continue
		}
		out = append(out, option{id: id, name: name})
	}
	return out, nil
}

func parseOptionValue(value string) (id, name string) {
	if !strings.HasPrefix(value, "{") {
		return value, ""
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return value, ""
	}
	for _, k := range []string{"stateId", "districtId", "id"} {
		if v, ok := raw[k]; ok {
			id = jsonString(v)
			break
		}
	}
	for _, k := range []string{"stateName", "districtName", "name"} {
		if v, ok := raw[k]; ok {
			name = jsonString(v)
			break
		}
	}
	if id == "" {
		id = value
	}
	return id, name
}

func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func withDefaults(s Selectors) Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&s.RegionSelect, d.RegionSelect)
	fill(&s.SubRegionSelect, d.SubRegionSelect)
	fill(&s.SearchButton, d.SearchButton)
	fill(&s.ResultItem, d.ResultItem)
	fill(&s.NextButton, d.NextButton)
	fill(&s.DetailReady, d.DetailReady)
	return s
}
