package browser

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare ray", 403, http.Header{"Cf-Ray": {"abc"}}, "", BlockCloudflare},
		{"cloudflare server", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"rate limited", 429, http.Header{}, "", BlockRateLimit},
		{"challenge body", 200, http.Header{}, "<p>Checking your browser before accessing</p>", BlockCloudflare},
		{"recaptcha", 200, http.Header{}, `<div class="g-recaptcha"></div>`, BlockCaptcha},
		{"plain 503", 503, http.Header{}, "maintenance", BlockNone},
		{"normal page", 200, http.Header{}, "<div class='accordion-body'>school</div>", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: tt.header}
			blocked, bt := DetectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, bt := DetectBlock(nil, nil)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}

func TestElementHelpers(t *testing.T) {
	e := Element{
		Attrs:       map[string]string{"class": "page-link nextBtn", "disabled": ""},
		ParentAttrs: map[string]string{"class": "page-item"},
	}
	assert.True(t, e.HasClass("nextBtn"))
	assert.False(t, e.HasClass("next"))
	assert.True(t, e.HasAttr("disabled"))
	assert.Equal(t, "", e.Attr("href"))
	assert.False(t, e.ParentHasClass("disabled"))
}
