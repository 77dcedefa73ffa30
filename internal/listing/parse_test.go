package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/portal"
)

const fullItem = `<div class="accordion-body">
  <div class="d-flex">
    <span class="udiseCode">09150100101</span>
    <span class="OperationalStatus">Operational</span>
  </div>
  <h4 class="custom-word-break">  P.S. RAMPUR   KALAN </h4>
  <div class="row">
    <div class="col"><p>Edu. District : Agra</p></div>
    <div class="col"><p>Edu. Block : Achhnera</p></div>
    <div class="col"><p>Academic Year : 2024-25</p></div>
    <div class="col"><p>School Category</p><p>Primary</p></div>
    <div class="col"><p>School Management : Department of Education</p></div>
    <div class="col"><p>Class : <span>1</span> To <span>5</span></p></div>
    <div class="col"><p>School Type : Co-educational</p></div>
    <div class="col"><p>School Location : Rural</p></div>
    <div class="col"><p>Address : Rampur Kalan, Agra</p></div>
    <div class="col"><p>PIN Code : 283101</p></div>
  </div>
  <p class="lastModifiedTime">Last Modified: 12 Mar 2025</p>
  <a class="blueBtn" href="#/school/3141592/1">Know More</a>
</div>`

func resolver(href string) string {
	return portal.ResolveLink("https://kys.udiseplus.gov.in", href)
}

func TestParseItem_AllFields(t *testing.T) {
	rec, err := ParseItem(browser.Element{HTML: fullItem}, resolver)
	require.NoError(t, err)

	assert.Equal(t, "09150100101", rec.UDISECode)
	assert.Equal(t, "Operational", rec.OperationalStatus)
	assert.Equal(t, "P.S. RAMPUR KALAN", rec.SchoolName)
	assert.Equal(t, "Agra", rec.EduDistrict)
	assert.Equal(t, "Achhnera", rec.EduBlock)
	assert.Equal(t, "2024-25", rec.AcademicYear)
	assert.Equal(t, "Primary", rec.SchoolCategory, "value on the following line")
	assert.Equal(t, "Department of Education", rec.SchoolManagement)
	assert.Equal(t, "1 To 5", rec.ClassRange)
	assert.Equal(t, "Co-educational", rec.SchoolType)
	assert.Equal(t, "Rural", rec.SchoolLocation)
	assert.Equal(t, "Rampur Kalan, Agra", rec.Address)
	assert.Equal(t, "283101", rec.PinCode)
	assert.Equal(t, "12 Mar 2025", rec.LastModified)
	assert.Equal(t, "https://kys.udiseplus.gov.in/#/school/3141592/1", rec.KnowMoreLink)
	assert.True(t, rec.HasKnowMoreLink)
	assert.True(t, rec.Phase2Ready)
}

func TestParseItem_MissingFieldsAreNA(t *testing.T) {
	rec, err := ParseItem(browser.Element{HTML: `<div><h4>Lonely School</h4></div>`}, resolver)
	require.NoError(t, err)
	assert.Equal(t, "Lonely School", rec.SchoolName)
	assert.Equal(t, model.NA, rec.UDISECode)
	assert.Equal(t, model.NA, rec.PinCode)
	assert.Equal(t, model.NA, rec.KnowMoreLink)
	assert.False(t, rec.Phase2Ready)
}

func TestParseItem_Unusable(t *testing.T) {
	_, err := ParseItem(browser.Element{HTML: `<div><p>Class : 1 To 5</p></div>`}, resolver)
	assert.ErrorIs(t, err, ErrUnusableItem)
}

func TestParseItem_LabelOnOwnLine(t *testing.T) {
	rec, err := ParseItem(browser.Element{HTML: `<div><h4>Split School</h4>
<p>Class</p><p>6 To 10</p>
<p>School Type</p><p>Address : Main Road</p></div>`}, resolver)
	require.NoError(t, err)
	assert.Equal(t, "6 To 10", rec.ClassRange)
	assert.Equal(t, model.NA, rec.SchoolType, "next line is another label")
	assert.Equal(t, "Main Road", rec.Address)
}
