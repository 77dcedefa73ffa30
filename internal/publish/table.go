package publish

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Table is the schools database as the publisher sees it: one row per
// school, keyed by UDISE code.
type Table interface {
	// FindByCode returns the page ID of the row holding code, or "" when
	// the school has no row yet.
	FindByCode(ctx context.Context, code string) (string, error)
	CreateSchool(ctx context.Context, props notionapi.Properties) error
	UpdateSchool(ctx context.Context, pageID string, props notionapi.Properties) error
}

// databaseQuerier and pageWriter are the parts of the Notion SDK the
// table drives. notionapi.Client's Database and Page services satisfy them.
type databaseQuerier interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type pageWriter interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// NotionTable is a Table backed by a Notion database. Every API call waits
// on a shared limiter; Notion allows about 3 requests per second.
type NotionTable struct {
	db      databaseQuerier
	pages   pageWriter
	dbID    notionapi.DatabaseID
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewNotionTable connects to database dbID with the integration token.
// A non-positive rps disables throttling.
func NewNotionTable(token, dbID string, rps float64) *NotionTable {
	c := notionapi.NewClient(notionapi.Token(token))
	return newNotionTable(c.Database, c.Page, dbID, rps)
}

func newNotionTable(db databaseQuerier, pages pageWriter, dbID string, rps float64) *NotionTable {
	t := &NotionTable{
		db:    db,
		pages: pages,
		dbID:  notionapi.DatabaseID(dbID),
		log:   zap.L().With(zap.String("component", "publish"), zap.String("database_id", dbID)),
	}
	if rps > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return t
}

func (t *NotionTable) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return eris.Wrap(t.limiter.Wait(ctx), "publish: notion rate limit")
}

// FindByCode queries the code column. When a code has several rows the
// first one wins and the duplicates are logged.
func (t *NotionTable) FindByCode(ctx context.Context, code string) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	resp, err := t.db.Query(ctx, t.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropCode,
			RichText: &notionapi.TextFilterCondition{Equals: code},
		},
		PageSize: 2,
	})
	if err != nil {
		return "", eris.Wrapf(err, "publish: find school %s", code)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	if len(resp.Results) > 1 || resp.HasMore {
		t.log.Warn("duplicate school rows", zap.String("udise_code", code))
	}
	return string(resp.Results[0].ID), nil
}

// CreateSchool adds a row.
func (t *NotionTable) CreateSchool(ctx context.Context, props notionapi.Properties) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	_, err := t.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: t.dbID,
		},
		Properties: props,
	})
	return eris.Wrap(err, "publish: create school row")
}

// UpdateSchool overwrites the given columns of row pageID.
func (t *NotionTable) UpdateSchool(ctx context.Context, pageID string, props notionapi.Properties) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	_, err := t.pages.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: props})
	return eris.Wrapf(err, "publish: update school row %s", pageID)
}

// Notion caps a single rich-text run at 2000 characters.
const maxText = 2000

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxText {
		s = string(r[:maxText])
	}
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

func titleProp(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Title: richText(s)}
}

func textProp(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{RichText: richText(s)}
}

func numberProp(n int) notionapi.NumberProperty {
	return notionapi.NumberProperty{Number: float64(n)}
}

func selectProp(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: name}}
}
