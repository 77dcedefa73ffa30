package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/schoolscrape/internal/model"
)

type mockTable struct{ mock.Mock }

func (m *mockTable) FindByCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *mockTable) CreateSchool(ctx context.Context, props notionapi.Properties) error {
	return m.Called(ctx, props).Error(0)
}

func (m *mockTable) UpdateSchool(ctx context.Context, pageID string, props notionapi.Properties) error {
	return m.Called(ctx, pageID, props).Error(0)
}

var goa = model.Region{Name: "GOA", ID: "30"}

func record(code string) model.DetailRecord {
	l := model.ListingRecord{UDISECode: code, SchoolName: "School " + code, State: "GOA", District: "NORTH GOA"}
	l.Link("https://kys.udiseplus.gov.in/#/schooldetail/" + code + "/12")
	d := model.NewDetailRecord(l)
	d.DetailSchoolName = "GOVT HIGH SCHOOL " + code
	d.ClassFrom, d.ClassTo = "1", "10"
	d.TotalStudents = model.CountOf(420)
	d.Status = model.StatusSuccess
	d.FieldsPopulated = 12
	return d
}

func hasCode(code string) any {
	return mock.MatchedBy(func(props notionapi.Properties) bool {
		p, ok := props[PropCode].(notionapi.RichTextProperty)
		return ok && p.RichText[0].Text.Content == code
	})
}

func TestPublish_CreatesAndUpdates(t *testing.T) {
	mt := &mockTable{}
	ctx := context.Background()

	mt.On("FindByCode", ctx, "3001").Return("", nil).Once()
	mt.On("FindByCode", ctx, "3002").Return("page-3002", nil).Once()
	mt.On("CreateSchool", ctx, hasCode("3001")).Return(nil).Once()
	mt.On("UpdateSchool", ctx, "page-3002", hasCode("3002")).Return(nil).Once()

	err := NewNotionPublisher(mt).Publish(ctx, goa, []model.DetailRecord{record("3001"), record("3002")})
	require.NoError(t, err)
	mt.AssertExpectations(t)
}

func TestUpsertSchool_NAcodeAlwaysCreates(t *testing.T) {
	mt := &mockTable{}
	ctx := context.Background()
	mt.On("CreateSchool", ctx, mock.Anything).Return(nil).Once()

	isNew, err := NewNotionPublisher(mt).UpsertSchool(ctx, record(model.NA))
	require.NoError(t, err)
	assert.True(t, isNew)
	mt.AssertNotCalled(t, "FindByCode", mock.Anything, mock.Anything)
	mt.AssertExpectations(t)
}

func TestPublish_ContinuesAfterFailure(t *testing.T) {
	mt := &mockTable{}
	ctx := context.Background()

	mt.On("FindByCode", ctx, "3001").Return("", errors.New("rate limited")).Once()
	mt.On("FindByCode", ctx, "3002").Return("", nil).Once()
	mt.On("CreateSchool", ctx, hasCode("3002")).Return(nil).Once()

	err := NewNotionPublisher(mt).Publish(ctx, goa, []model.DetailRecord{record("3001"), record("3002")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 records failed for GOA")
	mt.AssertExpectations(t)
}

func TestPublish_UpdateFailureCounts(t *testing.T) {
	mt := &mockTable{}
	ctx := context.Background()
	mt.On("FindByCode", ctx, "3001").Return("page-3001", nil).Once()
	mt.On("UpdateSchool", ctx, "page-3001", mock.Anything).Return(errors.New("archived")).Once()

	err := NewNotionPublisher(mt).Publish(ctx, goa, []model.DetailRecord{record("3001")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archived")
	mt.AssertNotCalled(t, "CreateSchool", mock.Anything, mock.Anything)
}

func TestProperties(t *testing.T) {
	d := record("3001")
	props := Properties(d)

	assert.Equal(t, "GOVT HIGH SCHOOL 3001", props[PropName].(notionapi.TitleProperty).Title[0].Text.Content)
	assert.Equal(t, "1 To 10", props[PropClasses].(notionapi.RichTextProperty).RichText[0].Text.Content)
	assert.InDelta(t, 420.0, props[PropStudents].(notionapi.NumberProperty).Number, 0.001)
	assert.Equal(t, "SUCCESS", props[PropStatus].(notionapi.SelectProperty).Select.Name)
	assert.Contains(t, props, PropLink)
	assert.NotContains(t, props, PropTeachers, "missing counts are omitted")

	d.DetailSchoolName = model.NA
	d.SourceURL = model.NA
	props = Properties(d)
	assert.Equal(t, "School 3001", props[PropName].(notionapi.TitleProperty).Title[0].Text.Content)
	assert.NotContains(t, props, PropLink)
}
