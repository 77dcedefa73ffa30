package browser

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/schoolscrape/internal/resilience"
)

const maxBodyBytes = 16 << 20

// HTTPOptions configures the HTTP navigator.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerSecond caps requests across the whole session. Default: 2.
	RatePerSecond float64
	Burst         int
	Breaker       resilience.BreakerConfig
}

// HTTPNavigator implements Navigator over plain HTTP for server-rendered
// pages. Links are followed by href, forms are submitted with their
// current field values, and every read works on the last parsed document.
type HTTPNavigator struct {
	client   *http.Client
	opts     HTTPOptions
	limiter  *rate.Limiter
	breakers *resilience.Breakers
	log      *zap.Logger

	last request
	url  *url.URL
	doc  *goquery.Document
}

type request struct {
	method string
	u      *url.URL
	form   url.Values
}

func (r request) build(ctx context.Context) (*http.Request, error) {
	u := *r.u
	u.Fragment = ""
	if r.method == http.MethodPost {
		req, err := http.NewRequestWithContext(ctx, r.method, u.String(), strings.NewReader(r.form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}
	if r.form != nil {
		u.RawQuery = r.form.Encode()
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// NewHTTPNavigator creates a navigator with its own cookie jar.
func NewHTTPNavigator(opts HTTPOptions) *HTTPNavigator {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "schoolscrape/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	jar, _ := cookiejar.New(nil) // only fails with a non-nil options value

	return &HTTPNavigator{
		client: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breakers: resilience.NewBreakers(opts.Breaker),
		log:      zap.L().With(zap.String("component", "browser")),
	}
}

// Load navigates to rawURL, resolved against the current page.
func (n *HTTPNavigator) Load(ctx context.Context, rawURL string) error {
	u, err := n.resolve(rawURL)
	if err != nil {
		return err
	}
	return n.do(ctx, request{method: http.MethodGet, u: u})
}

// Reload repeats the request that produced the current page.
func (n *HTTPNavigator) Reload(ctx context.Context) error {
	if n.last.u == nil {
		return ErrNoPage
	}
	return n.do(ctx, n.last)
}

// Click follows an anchor's href or submits the form a submit control
// belongs to.
func (n *HTTPNavigator) Click(ctx context.Context, selector string) error {
	el, err := n.first(selector)
	if err != nil {
		return err
	}
	if goquery.NodeName(el) == "a" {
		if href, ok := el.Attr("href"); ok && followable(href) {
			return n.Load(ctx, href)
		}
	}
	if isSubmitter(el) {
		if form := el.Closest("form"); form.Length() > 0 {
			return n.submit(ctx, form, el)
		}
	}
	return eris.Errorf("browser: element %q is not clickable without scripting", selector)
}

// Select marks the matching option as selected. A select whose onchange
// handler submits its form is submitted, as a browser would.
func (n *HTTPNavigator) Select(ctx context.Context, selector, value string) error {
	sel, err := n.first(selector)
	if err != nil {
		return err
	}
	var match *goquery.Selection
	sel.Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		if optionValue(opt) == value || strings.EqualFold(strings.TrimSpace(opt.Text()), strings.TrimSpace(value)) {
			match = opt
			return false
		}
		return true
	})
	if match == nil {
		return eris.Wrapf(ErrNoOption, "%q in %q", value, selector)
	}
	sel.Find("option").RemoveAttr("selected")
	match.SetAttr("selected", "selected")

	if onchange, _ := sel.Attr("onchange"); strings.Contains(onchange, "submit") {
		if form := sel.Closest("form"); form.Length() > 0 {
			return n.submit(ctx, form, nil)
		}
	}
	return nil
}

func (n *HTTPNavigator) ReadText(_ context.Context, selector string) (string, error) {
	el, err := n.first(selector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(el.Text()), nil
}

func (n *HTTPNavigator) ReadAttribute(_ context.Context, selector, attr string) (string, error) {
	el, err := n.first(selector)
	if err != nil {
		return "", err
	}
	v, ok := el.Attr(attr)
	if !ok {
		return "", eris.Wrapf(ErrNoAttribute, "%s on %q", attr, selector)
	}
	return v, nil
}

func (n *HTTPNavigator) Elements(_ context.Context, selector string) ([]Element, error) {
	if n.doc == nil {
		return nil, ErrNoPage
	}
	var out []Element
	n.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, snapshot(s))
	})
	return out, nil
}

func (n *HTTPNavigator) Exists(_ context.Context, selector string) (bool, error) {
	if n.doc == nil {
		return false, ErrNoPage
	}
	return n.doc.Find(selector).Length() > 0, nil
}

// PageSignature hashes the outer HTML of every element matching selector.
func (n *HTTPNavigator) PageSignature(_ context.Context, selector string) (string, error) {
	if n.doc == nil {
		return "", ErrNoPage
	}
	h := sha256.New()
	n.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		html, _ := goquery.OuterHtml(s)
		_, _ = io.WriteString(h, html)
		_, _ = h.Write([]byte{0})
	})
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (n *HTTPNavigator) CurrentURL() string {
	if n.url == nil {
		return ""
	}
	return n.url.String()
}

func (n *HTTPNavigator) do(ctx context.Context, r request) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "browser: rate limiter wait")
	}

	var (
		doc   *goquery.Document
		final *url.URL
	)
	err := n.breakers.Get(r.u.Host).Execute(ctx, func(ctx context.Context) error {
		req, err := r.build(ctx)
		if err != nil {
			return resilience.Permanent(eris.Wrap(err, "browser: create request"))
		}
		req.Header.Set("User-Agent", n.opts.UserAgent)

		resp, err := n.client.Do(req)
		if err != nil {
			return eris.Wrapf(err, "browser: %s %s", r.method, r.u.Redacted())
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return eris.Wrap(err, "browser: read body")
		}
		if blocked, bt := DetectBlock(resp, body); blocked {
			return resilience.NewTransientError(eris.Errorf("browser: blocked (%s) at %s", bt, r.u.Redacted()), resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			err := eris.Errorf("browser: status %d from %s", resp.StatusCode, r.u.Redacted())
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return resilience.Permanent(err)
		}

		doc, err = goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "browser: parse document")
		}
		final = resp.Request.URL
		return nil
	})
	if err != nil {
		return err
	}

	u := *final
	if u.Fragment == "" {
		u.Fragment = r.u.Fragment
	}
	doc.Url = &u
	n.doc, n.url, n.last = doc, &u, r

	n.log.Debug("page loaded", zap.String("method", r.method), zap.String("url", u.Redacted()))
	return nil
}

func (n *HTTPNavigator) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	action, _ := form.Attr("action")
	u, err := n.resolve(action)
	if err != nil {
		return err
	}
	method := http.MethodGet
	if m, _ := form.Attr("method"); strings.EqualFold(m, http.MethodPost) {
		method = http.MethodPost
	}
	return n.do(ctx, request{method: method, u: u, form: formValues(form, submitter)})
}

func (n *HTTPNavigator) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, resilience.Permanent(eris.Wrapf(err, "browser: parse url %q", raw))
	}
	if n.url != nil {
		ref = n.url.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return nil, resilience.Permanent(eris.Errorf("browser: url %q is not absolute", raw))
	}
	return ref, nil
}

func (n *HTTPNavigator) first(selector string) (*goquery.Selection, error) {
	if n.doc == nil {
		return nil, ErrNoPage
	}
	s := n.doc.Find(selector).First()
	if s.Length() == 0 {
		return nil, eris.Wrapf(ErrNoElement, "%q", selector)
	}
	return s, nil
}

func snapshot(s *goquery.Selection) Element {
	html, _ := goquery.OuterHtml(s)
	return Element{
		Text:        strings.TrimSpace(s.Text()),
		HTML:        html,
		Attrs:       attrs(s),
		ParentAttrs: attrs(s.Parent()),
	}
}

func attrs(s *goquery.Selection) map[string]string {
	out := make(map[string]string)
	if s.Length() == 0 {
		return out
	}
	for _, a := range s.Get(0).Attr {
		out[a.Key] = a.Val
	}
	return out
}

func followable(href string) bool {
	href = strings.TrimSpace(href)
	return href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript:")
}

func isSubmitter(s *goquery.Selection) bool {
	typ := strings.ToLower(s.AttrOr("type", ""))
	switch goquery.NodeName(s) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

func optionValue(opt *goquery.Selection) string {
	if v, ok := opt.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(opt.Text())
}

func formValues(form, submitter *goquery.Selection) url.Values {
	vals := url.Values{}
	form.Find("input[name], select[name], textarea[name]").Each(func(_ int, f *goquery.Selection) {
		if _, disabled := f.Attr("disabled"); disabled {
			return
		}
		name := f.AttrOr("name", "")
		switch goquery.NodeName(f) {
		case "select":
			opt := f.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = f.Find("option").First()
			}
			if opt.Length() > 0 {
				vals.Add(name, optionValue(opt))
			}
		case "textarea":
			vals.Add(name, f.Text())
		default:
			switch strings.ToLower(f.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
			case "checkbox", "radio":
				if _, checked := f.Attr("checked"); checked {
					vals.Add(name, f.AttrOr("value", "on"))
				}
			default:
				vals.Add(name, f.AttrOr("value", ""))
			}
		}
	})
	if submitter != nil {
		if name := submitter.AttrOr("name", ""); name != "" {
			vals.Add(name, submitter.AttrOr("value", ""))
		}
	}
	return vals
}
