package cgi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AKMHZJ/localserver/pkg/httpcodec"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "script.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func postRequest(body string) *httpcodec.Request {
	req := &httpcodec.Request{
		Method:  "POST",
		Target:  "/cgi/script.sh",
		Path:    "/cgi/script.sh",
		Version: "HTTP/1.1",
		Header:  httpcodec.Header{},
		Body:    []byte(body),
	}
	req.Header.Set("Host", "localhost")
	return req
}

func params(script string) Params {
	return Params{
		Interpreter: "/bin/sh",
		ScriptPath:  script,
		ScriptName:  "/cgi/script.sh",
		PathInfo:    "/cgi/script.sh",
		ServerName:  "localhost",
		ServerPort:  "8080",
		RemoteAddr:  "127.0.0.1",
	}
}

func TestExecute_EchoWithStatus(t *testing.T) {
	script := writeScript(t, `body=$(cat)
printf 'Status: 200\r\nContent-Type: text/plain\r\n\r\ngot:%s' "${body#name=}"
`)
	h := Handler{Timeout: 5 * time.Second}
	resp := h.Execute(postRequest("name=x"), params(script))
	if resp.Status != 200 {
		t.Fatalf("status: got %d", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("content type: got %q", ct)
	}
	if string(resp.Body) != "got:x" {
		t.Fatalf("body: got %q", resp.Body)
	}
}

func TestExecute_StatusOverride(t *testing.T) {
	script := writeScript(t, `printf 'Status: 404 Not Found\r\nContent-Type: text/html\r\n\r\nmissing'
`)
	h := Handler{Timeout: 5 * time.Second}
	resp := h.Execute(postRequest(""), params(script))
	if resp.Status != 404 {
		t.Fatalf("status: got %d", resp.Status)
	}
	if string(resp.Body) != "missing" {
		t.Fatalf("body: got %q", resp.Body)
	}
}

func TestExecute_Environment(t *testing.T) {
	script := writeScript(t, `printf 'Content-Type: text/plain\r\n\r\n'
printf '%s|%s|%s|%s' "$REQUEST_METHOD" "$QUERY_STRING" "$HTTP_X_TOKEN" "$CONTENT_LENGTH"
`)
	h := Handler{Timeout: 5 * time.Second}
	req := postRequest("abc")
	req.Query = "k=v"
	req.Header.Set("X-Token", "secret")
	resp := h.Execute(req, params(script))
	if resp.Status != 200 {
		t.Fatalf("status: got %d", resp.Status)
	}
	if got := string(resp.Body); got != "POST|k=v|secret|3" {
		t.Fatalf("env projection: got %q", got)
	}
}

func TestExecute_LFOnlyHeaders(t *testing.T) {
	script := writeScript(t, `printf 'Content-Type: text/plain\n\nplain-lf'
`)
	h := Handler{Timeout: 5 * time.Second}
	resp := h.Execute(postRequest(""), params(script))
	if resp.Status != 200 || string(resp.Body) != "plain-lf" {
		t.Fatalf("got %d %q", resp.Status, resp.Body)
	}
}

func TestExecute_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 3
printf 'Content-Type: text/plain\r\n\r\nlate'
`)
	h := Handler{Timeout: 200 * time.Millisecond}
	start := time.Now()
	resp := h.Execute(postRequest(""), params(script))
	if resp.Status != 504 {
		t.Fatalf("status: got %d", resp.Status)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("child was not killed at the deadline")
	}
}

func TestExecute_MalformedOutput(t *testing.T) {
	script := writeScript(t, `printf 'no header terminator here'
`)
	h := Handler{Timeout: 5 * time.Second}
	resp := h.Execute(postRequest(""), params(script))
	if resp.Status != 502 {
		t.Fatalf("status: got %d", resp.Status)
	}
}

func TestExecute_SpawnFailure(t *testing.T) {
	h := Handler{Timeout: 5 * time.Second}
	p := params("/does/not/exist.sh")
	p.Interpreter = "/does/not/exist"
	resp := h.Execute(postRequest(""), p)
	if resp.Status != 502 {
		t.Fatalf("status: got %d", resp.Status)
	}
}

func TestExecute_WorkingDirectory(t *testing.T) {
	script := writeScript(t, `printf 'Content-Type: text/plain\r\n\r\n'
pwd | tr -d '\n'
`)
	h := Handler{Timeout: 5 * time.Second}
	resp := h.Execute(postRequest(""), params(script))
	if resp.Status != 200 {
		t.Fatalf("status: got %d", resp.Status)
	}
	if got, want := string(resp.Body), filepath.Dir(script); !strings.HasSuffix(got, want) {
		t.Fatalf("cwd: got %q want suffix %q", got, want)
	}
}
