package backend

import (
	"errors"
	"net/http"
)

// forwardedHeaders are copied from the browser request to the hospital API.
var forwardedHeaders = []string{"Content-Type", "Accept", "Accept-Language", "X-Correlation-ID"}

// Forward proxies r to path on the hospital API and writes the upstream
// response to w. Upstream errors other than 401 pass through unchanged; the
// returned error is non-nil only when nothing was written.
func (g *Gateway) Forward(w http.ResponseWriter, r *http.Request, path string) error {
	target := path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	header := http.Header{}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			header.Set(h, v)
		}
	}

	resp, err := g.Do(r.Context(), r.Method, target, r.Body, header)
	var apiErr *APIError
	if err != nil && !errors.As(err, &apiErr) {
		return err
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
	return nil
}
