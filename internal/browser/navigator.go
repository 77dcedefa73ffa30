// Package browser provides the navigation session the extractors drive:
// load a page, interact with controls, and read snapshots of what is on
// screen.
package browser

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrNoElement is returned when a selector matched nothing.
	ErrNoElement = eris.New("browser: no element matches selector")
	// ErrNoAttribute is returned when the matched element lacks the attribute.
	ErrNoAttribute = eris.New("browser: attribute not present")
	// ErrNoOption is returned when a select has no option with the value.
	ErrNoOption = eris.New("browser: no such option")
	// ErrNoPage is returned by reads before any page was loaded.
	ErrNoPage = eris.New("browser: no page loaded")
)

// Navigator is a single stateful navigation session. Exactly one
// operation is in flight at a time; callers must not share a Navigator
// across goroutines.
type Navigator interface {
	// Load navigates to url and waits for the document.
	Load(ctx context.Context, url string) error
	// Reload re-requests the current page.
	Reload(ctx context.Context) error
	// Click activates the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Select chooses the option whose value (or visible text) is value in
	// the first select matching selector.
	Select(ctx context.Context, selector, value string) error
	ReadText(ctx context.Context, selector string) (string, error)
	ReadAttribute(ctx context.Context, selector, attr string) (string, error)
	// Elements snapshots every element matching selector, in document order.
	Elements(ctx context.Context, selector string) ([]Element, error)
	Exists(ctx context.Context, selector string) (bool, error)
	// PageSignature fingerprints the elements matching selector so callers
	// can tell whether the visible content changed.
	PageSignature(ctx context.Context, selector string) (string, error)
	CurrentURL() string
}

// Element is a detached snapshot of one DOM element.
type Element struct {
	Text        string
	HTML        string
	Attrs       map[string]string
	ParentAttrs map[string]string
}

// Attr returns the named attribute, or "" when absent.
func (e Element) Attr(name string) string {
	return e.Attrs[name]
}

// HasAttr reports whether the attribute is present, even if empty.
func (e Element) HasAttr(name string) bool {
	_, ok := e.Attrs[name]
	return ok
}

// HasClass reports whether the element's class list contains class.
func (e Element) HasClass(class string) bool {
	return hasClass(e.Attrs, class)
}

// ParentHasClass reports whether the parent's class list contains class.
func (e Element) ParentHasClass(class string) bool {
	return hasClass(e.ParentAttrs, class)
}

func hasClass(attrs map[string]string, class string) bool {
	return slices.Contains(strings.Fields(attrs["class"]), class)
}
