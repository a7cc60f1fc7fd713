package httpcodec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ServerName is the Server header value sent on every response.
const ServerName = "localserver/1.0"

var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	500: "Internal Server Error",
	502: "Bad Gateway",
	504: "Gateway Timeout",
}

// ReasonPhrase returns the fixed reason string for a supported status code.
func ReasonPhrase(code int) string {
	if s, ok := reasonPhrases[code]; ok {
		return s
	}
	return "Unknown"
}

// Response is a fully materialized HTTP response. The body is always held in
// memory; file bodies are read in full before serialization.
type Response struct {
	Status int
	Header Header
	Body   []byte
}

// NewResponse returns a response with the given status and empty headers.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: Header{}}
}

// SetBody installs body bytes and their content type.
func (r *Response) SetBody(body []byte, contentType string) {
	r.Body = body
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
}

// Serialize produces the exact wire form of the response. Content-Length,
// Date, Server and Connection: close are always emitted and override
// anything a handler set for those headers.
func (r *Response) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, ReasonPhrase(r.Status))

	r.Header.Set("Server", ServerName)
	r.Header.Set("Date", time.Now().UTC().Format(time.RFC1123))
	r.Header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	r.Header.Set("Connection", "close")

	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range r.Header[k] {
			fmt.Fprintf(&b, "%s: %s\r\n", canonicalName(k), v)
		}
	}
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(r.Body))
	out = append(out, b.String()...)
	out = append(out, r.Body...)
	return out
}

// canonicalName restores Header-Case from the lower-cased storage key.
func canonicalName(k string) string {
	parts := strings.Split(k, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
