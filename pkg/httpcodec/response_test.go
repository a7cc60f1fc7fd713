package httpcodec

import (
	"bytes"
	"strings"
	"testing"
)

func TestResponse_Serialize(t *testing.T) {
	resp := NewResponse(200)
	resp.SetBody([]byte("hi\n"), "text/html")
	wire := string(resp.Serialize())

	if !strings.HasPrefix(wire, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line: %q", wire[:strings.Index(wire, "\r\n")])
	}
	for _, want := range []string{
		"Content-Length: 3\r\n",
		"Content-Type: text/html\r\n",
		"Connection: close\r\n",
		"Server: " + ServerName + "\r\n",
		"Date: ",
	} {
		if !strings.Contains(wire, want) {
			t.Fatalf("missing %q in %q", want, wire)
		}
	}
	if !strings.HasSuffix(wire, "\r\n\r\nhi\n") {
		t.Fatalf("body placement wrong: %q", wire)
	}
}

func TestResponse_ReasonPhrases(t *testing.T) {
	cases := map[int]string{
		200: "OK",
		201: "Created",
		204: "No Content",
		301: "Moved Permanently",
		400: "Bad Request",
		403: "Forbidden",
		404: "Not Found",
		405: "Method Not Allowed",
		413: "Payload Too Large",
		500: "Internal Server Error",
		502: "Bad Gateway",
		504: "Gateway Timeout",
	}
	for code, want := range cases {
		if got := ReasonPhrase(code); got != want {
			t.Fatalf("code %d: got %q want %q", code, got, want)
		}
	}
	if got := ReasonPhrase(599); got != "Unknown" {
		t.Fatalf("unsupported code: got %q", got)
	}
}

// A well-formed request, parsed and then re-emitted in wire form from its
// parsed pieces, re-parses to an equivalent request: serialize(parse(bytes))
// stays stable on the subset the server re-emits.
func TestRequest_RoundTrip(t *testing.T) {
	raw := "POST /echo?x=1 HTTP/1.1\r\nHost: a.example\r\nContent-Length: 4\r\nContent-Type: text/plain\r\n\r\nbody"
	p := NewParser(0, nil)
	p.Feed([]byte(raw))
	if !p.Done() {
		t.Fatalf("parse failed, state %d", p.State())
	}
	req := p.Request()

	// re-emit the request in wire form from the parsed pieces
	var b strings.Builder
	b.WriteString(req.Method + " " + req.Target + " " + req.Version + "\r\n")
	b.WriteString("Host: " + req.Header.Get("Host") + "\r\n")
	b.WriteString("Content-Length: " + req.Header.Get("Content-Length") + "\r\n")
	b.WriteString("Content-Type: " + req.Header.Get("Content-Type") + "\r\n\r\n")
	b.Write(req.Body)

	p2 := NewParser(0, nil)
	p2.Feed([]byte(b.String()))
	if !p2.Done() {
		t.Fatalf("re-parse failed, state %d", p2.State())
	}
	req2 := p2.Request()
	if req2.Method != req.Method || req2.Target != req.Target || req2.Version != req.Version {
		t.Fatalf("request line drifted: %+v vs %+v", req2, req)
	}
	if !bytes.Equal(req2.Body, req.Body) {
		t.Fatalf("body drifted")
	}
	if req2.Header.Get("Content-Type") != req.Header.Get("Content-Type") {
		t.Fatalf("headers drifted")
	}
}

func TestHeader_CanonicalNameOnWire(t *testing.T) {
	resp := NewResponse(200)
	resp.Header.Set("x-custom-header", "v")
	wire := string(resp.Serialize())
	if !strings.Contains(wire, "X-Custom-Header: v\r\n") {
		t.Fatalf("expected canonical header casing, got %q", wire)
	}
}
