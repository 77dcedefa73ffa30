package browser

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot interstitial detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockRateLimit  BlockType = "rate_limit"
)

// DetectBlock checks a response for an interstitial served instead of the
// requested page. Blocks are reported as transient so the retry policy and
// breaker treat them like an overloaded portal.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, BlockRateLimit
	}

	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, BlockCloudflare
	}
	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "enter the captcha") {
		return true, BlockCaptcha
	}
	return false, BlockNone
}
