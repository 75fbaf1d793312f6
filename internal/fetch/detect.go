package fetch

import (
	"bytes"
	"net/http"
	"strings"
)

// detector inspects a response for a bot-protection challenge or block page.
type detector func(statusCode int, headers http.Header, body []byte) (vendor string, detected bool)

var blockDetectors = []detector{
	detectCloudflare,
	detectAkamai,
	detectDataDome,
	detectPerimeterX,
}

// detectBlock reports whether the response is a bot-protection block page
// rather than real content, and which vendor produced it.
func detectBlock(statusCode int, headers http.Header, body []byte) (string, bool) {
	for _, d := range blockDetectors {
		if vendor, detected := d(statusCode, headers, body); detected {
			return vendor, true
		}
	}
	return "", false
}

func detectCloudflare(statusCode int, headers http.Header, body []byte) (string, bool) {
	if statusCode != http.StatusForbidden && statusCode != http.StatusServiceUnavailable {
		return "", false
	}
	if strings.Contains(strings.ToLower(headers.Get("Server")), "cloudflare") {
		return "Cloudflare", true
	}
	if bytes.Contains(body, []byte("cf-browser-verification")) ||
		bytes.Contains(body, []byte("cloudflare-nginx")) ||
		bytes.Contains(body, []byte("cf-turnstile")) ||
		bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
		return "Cloudflare", true
	}
	return "", false
}

func detectAkamai(statusCode int, headers http.Header, body []byte) (string, bool) {
	if statusCode != http.StatusForbidden {
		return "", false
	}
	if strings.Contains(strings.ToLower(headers.Get("Server")), "akamai") {
		return "Akamai", true
	}
	// Akamai block pages carry a generic "Reference #" denial
	if bytes.Contains(body, []byte("Reference #")) && bytes.Contains(body, []byte("Access Denied")) {
		return "Akamai", true
	}
	return "", false
}

func detectDataDome(statusCode int, headers http.Header, body []byte) (string, bool) {
	if statusCode != http.StatusForbidden {
		return "", false
	}
	if strings.Contains(strings.ToLower(headers.Get("Server")), "datadome") {
		return "DataDome", true
	}
	if headers.Get("X-DataDome") != "" || headers.Get("X-DataDome-Response") != "" {
		return "DataDome", true
	}
	if bytes.Contains(body, []byte("geo.captcha-delivery.com")) || bytes.Contains(body, []byte("datadome")) {
		return "DataDome", true
	}
	return "", false
}

func detectPerimeterX(statusCode int, headers http.Header, body []byte) (string, bool) {
	if statusCode != http.StatusForbidden {
		return "", false
	}
	if headers.Get("X-Px-Captcha") != "" {
		return "PerimeterX", true
	}
	if bytes.Contains(body, []byte("client.perimeterx.net")) ||
		bytes.Contains(body, []byte("px-captcha")) ||
		bytes.Contains(body, []byte("_pxBlock")) {
		return "PerimeterX", true
	}
	return "", false
}
