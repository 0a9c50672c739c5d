package httpclient

import (
	"fmt"
	"sort"
	"strings"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

// Header looks a header up case-insensitively.
func (r *Response) Header(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func (r *Response) IsJSON() bool {
	ct, _ := r.Header("Content-Type")
	return strings.Contains(ct, "application/json")
}

// Describe renders the status line, headers and decoded body for failure
// diagnostics.
func (r *Response) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HTTP/1.1 %s\n", r.Status)
	sb.WriteString(formatHeaders(r.Headers))
	if len(r.Body) > 0 {
		fmt.Fprintf(&sb, "\n%s", r.Body)
	}
	return sb.String()
}

func formatHeaders(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, headers[k])
	}
	return sb.String()
}
