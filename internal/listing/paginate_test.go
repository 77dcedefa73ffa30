package listing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/resilience"
)

func threePages() *fakeSite {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA": {
			{item("0901", "A1", "#/school/1/1")},
			{item("0902", "A2", "#/school/2/1")},
			{item("0903", "A3", "#/school/3/1")},
		},
	}, "AGRA")
	site.current = "AGRA"
	return site
}

func collect(t *testing.T, p *Paginator) ([]int, PaginationResult, error) {
	t.Helper()
	var pages []int
	res, err := p.Run(context.Background(), func(pg Page) error {
		pages = append(pages, pg.Number)
		return nil
	})
	return pages, res, err
}

func TestPaginator_VisitsEveryPage(t *testing.T) {
	site := threePages()
	pages, res, err := collect(t, NewPaginator(site, noWait(), noWait(), 0, "AGRA"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)
	assert.Equal(t, Exhausted, res.Final)
	assert.Equal(t, ReasonDisabled, res.Reason)
	assert.Equal(t, 3, res.Pages)
}

func TestPaginator_MaxPages(t *testing.T) {
	site := threePages()
	pages, res, err := collect(t, NewPaginator(site, noWait(), noWait(), 2, "AGRA"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pages)
	assert.Equal(t, ReasonMaxPages, res.Reason)
}

func TestPaginator_NextControlRetriedThenRecovers(t *testing.T) {
	site := threePages()
	site.nextFail = 2

	pages, res, err := collect(t, NewPaginator(site, noWait(), noWait(), 0, "AGRA"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)
	assert.Equal(t, ReasonDisabled, res.Reason)
	assert.Equal(t, 2, site.reloads)
}

func TestPaginator_UndeterminedNextControl(t *testing.T) {
	site := threePages()
	site.nextFail = 10

	pages, res, err := collect(t, NewPaginator(site, noWait(), resilience.Policy{MaxAttempts: 2}, 0, "AGRA"))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pages)
	assert.Equal(t, Exhausted, res.Final)
	assert.Equal(t, ReasonUndetermined, res.Reason)
}

func TestPaginator_Stuck(t *testing.T) {
	site := threePages()
	site.advanceNoop = 0

	pages, res, err := collect(t, NewPaginator(site, noWait(), noWait(), 0, "AGRA"))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pages)
	assert.Equal(t, Stuck, res.Final)
	require.NotNil(t, res.Stuck)
	assert.Equal(t, "AGRA", res.Stuck.SubRegion)
	assert.Contains(t, res.Stuck.Error(), "page 2 repeats page 1")
}

func TestPageState_String(t *testing.T) {
	assert.Equal(t, "LOADING", Loading.String())
	assert.Equal(t, "READY", Ready.String())
	assert.Equal(t, "ADVANCING", Advancing.String())
	assert.Equal(t, "EXHAUSTED", Exhausted.String())
	assert.Equal(t, "STUCK", Stuck.String())
	assert.Equal(t, "UNKNOWN", PageState(42).String())
}
