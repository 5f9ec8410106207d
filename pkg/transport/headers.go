package transport

import "net/http"

// headerRoundTripper injects static headers (e.g. a bearer token written by
// an AuthStrategy into env/headers) on every outbound request.
type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return h.base.RoundTrip(req)
}

func httpClientWithHeaders(headers map[string]string) *http.Client {
	return &http.Client{Transport: &headerRoundTripper{headers: headers, base: http.DefaultTransport}}
}
