package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/portal"
	"github.com/sells-group/schoolscrape/internal/resilience"
)

var errFlaky = errors.New("element not interactable")

func noWait() resilience.Policy {
	return resilience.Policy{MaxAttempts: 3}
}

func item(code, name, href string) browser.Element {
	link := ""
	if href != "" {
		link = fmt.Sprintf(`<a class="blueBtn" href="%s">Know More</a>`, href)
	}
	return browser.Element{HTML: fmt.Sprintf(`<div class="accordion-body">
  <span class="udiseCode">%s</span><span class="OperationalStatus">Operational</span>
  <h4 class="custom-word-break">%s</h4>
  <ul><li>Edu. District : Agra</li><li>Class : 1 To 8</li></ul>
  %s
</div>`, code, name, link)}
}

// fakeSite serves scripted result pages per sub-region.
type fakeSite struct {
	subs    []model.SubRegion
	pages   map[string][][]browser.Element
	subErr  error
	subFail int // SubRegions calls that fail before succeeding

	// advanceNoop keeps Advance from moving past this page index when >= 0.
	advanceNoop int
	// nextFail makes the next NextControl calls fail.
	nextFail int
	// searchFail fails Search for the named sub-region every time.
	searchFail string
	// onSearch runs on every accepted search.
	onSearch func(sub string)

	current   string
	page      int
	searched  []string
	reloads   int
	prepares  int
	subCalls  int
	formShown bool
}

func newFakeSite(pages map[string][][]browser.Element, order ...string) *fakeSite {
	f := &fakeSite{pages: pages, advanceNoop: -1}
	for _, name := range order {
		f.subs = append(f.subs, model.SubRegion{Name: name, ID: strings.ToLower(name)})
	}
	return f
}

func (f *fakeSite) SubRegions(_ context.Context, region model.Region) ([]model.SubRegion, error) {
	f.subCalls++
	if f.subErr != nil {
		return nil, f.subErr
	}
	if f.subFail > 0 {
		f.subFail--
		return nil, errFlaky
	}
	f.formShown = true
	out := make([]model.SubRegion, len(f.subs))
	for i, s := range f.subs {
		s.Parent = region
		out[i] = s
	}
	return out, nil
}

func (f *fakeSite) PrepareRegion(_ context.Context, _ model.Region) error {
	f.prepares++
	f.formShown = true
	return nil
}

func (f *fakeSite) SearchReady(_ context.Context) (bool, error) { return f.formShown, nil }

func (f *fakeSite) Search(_ context.Context, sub model.SubRegion) error {
	if !f.formShown {
		return browser.ErrNoElement
	}
	if sub.Name == f.searchFail {
		return errFlaky
	}
	f.current = sub.Name
	f.page = 0
	f.searched = append(f.searched, sub.Name)
	f.formShown = false
	if f.onSearch != nil {
		f.onSearch(sub.Name)
	}
	return nil
}

func (f *fakeSite) SetPageSize(_ context.Context, _ int) error { return browser.ErrNoElement }

func (f *fakeSite) WaitResults(_ context.Context) (bool, error) {
	return len(f.pages[f.current]) > 0, nil
}

func (f *fakeSite) Items(_ context.Context) ([]browser.Element, error) {
	return f.pages[f.current][f.page], nil
}

func (f *fakeSite) NextControl(_ context.Context) (portal.NextState, error) {
	if f.nextFail > 0 {
		f.nextFail--
		return portal.NextAbsent, errFlaky
	}
	pages := f.pages[f.current]
	if f.page < len(pages)-1 {
		return portal.NextEnabled, nil
	}
	return portal.NextDisabled, nil
}

func (f *fakeSite) Advance(_ context.Context) error {
	if f.advanceNoop >= 0 && f.page >= f.advanceNoop {
		return nil
	}
	f.page++
	return nil
}

func (f *fakeSite) Signature(_ context.Context) (string, error) {
	var b strings.Builder
	for _, it := range f.pages[f.current][f.page] {
		b.WriteString(it.HTML)
	}
	return b.String(), nil
}

func (f *fakeSite) Reload(_ context.Context) error {
	f.reloads++
	return nil
}

func (f *fakeSite) ResolveLink(href string) string {
	return portal.ResolveLink("https://kys.udiseplus.gov.in", href)
}
