package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/model"
)

var region = model.Region{Name: "UTTAR PRADESH", ID: "9"}

func newTestExtractor(site Site) *Extractor {
	return New(site, Config{PortalPolicy: noWait(), NextPolicy: noWait(), PageSize: 100})
}

func TestExtract_TwoSubRegions(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA": {
			{item("0901", "School A1", "#/school/1/1"), item("0902", "School A2", "#/school/2/1")},
			{item("0903", "School A3", "#/school/3/1")},
		},
		"ALIGARH": {
			{item("0904", "School B1", "#/school/4/1"), item("0905", "School B2", ""), item("0906", "School B3", "#/school/6/1")},
		},
	}, "AGRA", "ALIGARH")

	res, err := newTestExtractor(site).Extract(context.Background(), region)
	require.NoError(t, err)
	require.Len(t, res.Records, 6)
	require.Len(t, res.SubRegions, 2)

	var codes []string
	for _, r := range res.Records {
		codes = append(codes, r.UDISECode)
	}
	assert.Equal(t, []string{"0901", "0902", "0903", "0904", "0905", "0906"}, codes)

	first := res.Records[0]
	assert.Equal(t, "UTTAR PRADESH", first.State)
	assert.Equal(t, "9", first.StateID)
	assert.Equal(t, "AGRA", first.District)
	assert.Equal(t, "agra", first.DistrictID)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, "Agra", first.EduDistrict)
	assert.Equal(t, "https://kys.udiseplus.gov.in/#/school/1/1", first.KnowMoreLink)
	assert.True(t, first.Phase2Ready)
	assert.False(t, first.ExtractionDate.IsZero())

	assert.Equal(t, 2, res.Records[2].Page)

	noLink := res.Records[4]
	assert.Equal(t, model.NA, noLink.KnowMoreLink)
	assert.False(t, noLink.HasKnowMoreLink)
	assert.False(t, noLink.Phase2Ready)

	assert.Equal(t, 2, res.SubRegions[0].Pages)
	assert.Equal(t, ReasonDisabled, res.SubRegions[0].Reason)
	assert.Equal(t, 3, res.SubRegions[1].Records)
	assert.Empty(t, res.Failed())
	assert.Equal(t, []string{"AGRA", "ALIGARH"}, site.searched)
	assert.Equal(t, 1, site.prepares, "form restored once before the second search")
}

func TestExtract_EnumerationFailure(t *testing.T) {
	site := newFakeSite(nil)
	site.subErr = errFlaky

	_, err := newTestExtractor(site).Extract(context.Background(), region)
	require.Error(t, err)

	var re *RegionEnumerationError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "UTTAR PRADESH", re.Region)
	assert.Equal(t, 3, site.subCalls)
	assert.Equal(t, 2, site.reloads)
}

func TestExtract_EnumerationRecovers(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA": {{item("0901", "School A1", "#/school/1/1")}},
	}, "AGRA")
	site.subFail = 1

	res, err := newTestExtractor(site).Extract(context.Background(), region)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 1, site.reloads)
}

func TestExtract_SubRegionFailureContinues(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA":    {{item("0901", "School A1", "#/school/1/1")}},
		"ALIGARH": {{item("0904", "School B1", "#/school/4/1")}},
		"AMETHI":  {{item("0907", "School C1", "#/school/7/1")}},
	}, "AGRA", "ALIGARH", "AMETHI")
	site.searchFail = "ALIGARH"

	res, err := newTestExtractor(site).Extract(context.Background(), region)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "0901", res.Records[0].UDISECode)
	assert.Equal(t, "0907", res.Records[1].UDISECode)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "ALIGARH", failed[0].SubRegion.Name)

	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "aligarh", failures[0].ID)
	assert.Equal(t, "ALIGARH", failures[0].Name)
	assert.Contains(t, failures[0].Reason, "element not interactable")
}

func TestExtract_EmptySubRegion(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA": {{item("0901", "School A1", "#/school/1/1")}},
	}, "AGRA", "EMPTY")

	res, err := newTestExtractor(site).Extract(context.Background(), region)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	require.Len(t, res.SubRegions, 2)
	assert.Equal(t, ReasonEmpty, res.SubRegions[1].Reason)
	assert.NoError(t, res.SubRegions[1].Err)
}

func TestExtract_RepeatingPageIsStuck(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA": {
			{item("0901", "School A1", "#/school/1/1")},
			{item("0902", "School A2", "#/school/2/1")},
			{item("0903", "School A3", "#/school/3/1")},
		},
	}, "AGRA")
	site.advanceNoop = 1

	res, err := newTestExtractor(site).Extract(context.Background(), region)
	require.NoError(t, err)
	require.Len(t, res.Records, 2, "the repeated page is not emitted")
	out := res.SubRegions[0]
	assert.Equal(t, ReasonStuck, out.Reason)
	require.NotNil(t, out.Stuck)
	assert.Equal(t, 3, out.Stuck.Page)
	assert.Equal(t, 2, out.Stuck.RepeatOf)
}

func TestExtract_SkipsUnusableItems(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA": {{
			item("0901", "School A1", "#/school/1/1"),
			{HTML: `<div class="accordion-body"><p>nothing here</p></div>`},
			item("0902", "School A2", "javascript:void(0)"),
		}},
	}, "AGRA")

	res, err := newTestExtractor(site).Extract(context.Background(), region)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 1, res.SkippedItems)

	malformed := res.Records[1]
	assert.Equal(t, "javascript:void(0)", malformed.KnowMoreLink)
	assert.False(t, malformed.HasKnowMoreLink)
	assert.False(t, malformed.EligibleForDetail())
}

func TestExtract_CancelDoesNotTruncateRegion(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA":    {{item("0901", "School A1", "#/school/1/1")}},
		"ALIGARH": {{item("0904", "School B1", "#/school/4/1")}},
		"AMBALA":  {{item("0907", "School C1", "#/school/7/1")}},
	}, "AGRA", "ALIGARH", "AMBALA")

	ctx, cancel := context.WithCancel(context.Background())
	site.onSearch = func(string) { cancel() }

	res, err := newTestExtractor(site).Extract(ctx, region)
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
	assert.Len(t, res.SubRegions, 3)
	assert.Empty(t, res.Failed())
	assert.Equal(t, []string{"AGRA", "ALIGARH", "AMBALA"}, site.searched)
}

func TestExtract_ZeroSubRegionsIsEnumerationError(t *testing.T) {
	site := newFakeSite(nil)

	_, err := newTestExtractor(site).Extract(context.Background(), region)
	var re *RegionEnumerationError
	require.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, ErrNoSubRegions)
}

func TestExtract_SingleSubRegionTwoFullPages(t *testing.T) {
	site := newFakeSite(map[string][][]browser.Element{
		"AGRA": {
			{item("01", "S1", "#/school/1/1"), item("02", "S2", "#/school/2/1"), item("03", "S3", "#/school/3/1")},
			{item("04", "S4", "#/school/4/1"), item("05", "S5", "#/school/5/1"), item("06", "S6", "#/school/6/1")},
		},
	}, "AGRA")

	res, err := newTestExtractor(site).Extract(context.Background(), region)
	require.NoError(t, err)
	require.Len(t, res.Records, 6)
	for i, r := range res.Records {
		assert.Equal(t, i/3+1, r.Page)
	}
	out := res.SubRegions[0]
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, ReasonDisabled, out.Reason)
	assert.NoError(t, out.Err)
}
