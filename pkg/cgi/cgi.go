package cgi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AKMHZJ/localserver/pkg/httpcodec"
	"github.com/AKMHZJ/localserver/pkg/logger"
)

// Params carries the request-independent pieces of the CGI environment.
type Params struct {
	Interpreter string // e.g. /usr/bin/python3
	ScriptPath  string // filesystem path of the script
	ScriptName  string // URI path of the script
	PathInfo    string // PATH_INFO value; the router passes the full request path
	ServerName  string
	ServerPort  string
	RemoteAddr  string
}

// Handler spawns CGI children. It blocks the caller for at most Timeout plus
// a one-second grace for draining the output pipes; children still running
// at the deadline are killed and mapped to 504.
type Handler struct {
	Timeout time.Duration
}

// Execute runs the interpreter against the script per RFC 3875: the request
// body goes to the child's stdin, its stdout is collected until exit, and the
// output's header block is merged into the HTTP response.
func (h *Handler) Execute(req *httpcodec.Request, p Params) *httpcodec.Response {
	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Interpreter, p.ScriptPath)
	cmd.Dir = filepath.Dir(p.ScriptPath)
	cmd.Env = buildEnv(req, p)
	cmd.Stdin = bytes.NewReader(req.Body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// a killed script may leave grandchildren holding the stdout pipe;
	// don't wait on them forever
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		logger.Warn("cgi_timeout", "script", p.ScriptPath, "timeout", h.Timeout)
		return httpcodec.NewResponse(504)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// spawn failure: missing interpreter, permission, ...
			logger.Error("cgi_spawn_failed", "interpreter", p.Interpreter, "script", p.ScriptPath, "error", err)
			return httpcodec.NewResponse(502)
		}
		logger.Warn("cgi_exit_nonzero", "script", p.ScriptPath, "error", err, "stderr", stderr.String())
		return httpcodec.NewResponse(502)
	}

	resp, perr := parseOutput(stdout.Bytes())
	if perr != nil {
		logger.Warn("cgi_bad_output", "script", p.ScriptPath, "error", perr)
		return httpcodec.NewResponse(502)
	}
	return resp
}

// buildEnv assembles the RFC 3875 environment: the minimum meta-variables
// plus every inbound header except Proxy as HTTP_<UPPER_SNAKE>.
func buildEnv(req *httpcodec.Request, p Params) []string {
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_SOFTWARE=" + httpcodec.ServerName,
		"SERVER_PROTOCOL=HTTP/1.1",
		"REQUEST_METHOD=" + req.Method,
		"SCRIPT_NAME=" + p.ScriptName,
		"SCRIPT_FILENAME=" + p.ScriptPath,
		"PATH_INFO=" + p.PathInfo,
		"QUERY_STRING=" + req.Query,
		"SERVER_NAME=" + p.ServerName,
		"SERVER_PORT=" + p.ServerPort,
		"CONTENT_LENGTH=" + strconv.Itoa(len(req.Body)),
	}
	if ct := req.ContentType(); ct != "" {
		env = append(env, "CONTENT_TYPE="+ct)
	}
	if p.RemoteAddr != "" {
		env = append(env, "REMOTE_ADDR="+p.RemoteAddr)
	}
	for name, vals := range req.Header {
		key := strings.Map(upperSnake, name)
		if key == "PROXY" {
			continue
		}
		env = append(env, "HTTP_"+key+"="+strings.Join(vals, ", "))
	}
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	}
	return env
}

// parseOutput splits the child's stdout into a CGI header block and body.
// A Status header overrides the default 200.
func parseOutput(out []byte) (*httpcodec.Response, error) {
	head, body, ok := splitHeaderBlock(out)
	if !ok {
		return nil, fmt.Errorf("missing header terminator")
	}
	resp := httpcodec.NewResponse(200)
	for _, ln := range splitLines(head) {
		if len(ln) == 0 {
			continue
		}
		colon := bytes.IndexByte(ln, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("bogus header line %q", ln)
		}
		name := strings.TrimSpace(string(ln[:colon]))
		value := strings.TrimSpace(string(ln[colon+1:]))
		if strings.EqualFold(name, "Status") {
			if len(value) < 3 {
				return nil, fmt.Errorf("bogus status %q", value)
			}
			code, err := strconv.Atoi(value[:3])
			if err != nil {
				return nil, fmt.Errorf("bogus status %q", value)
			}
			resp.Status = code
			continue
		}
		resp.Header.Set(name, value)
	}
	resp.Body = body
	return resp, nil
}

// splitHeaderBlock finds the blank-line terminator, accepting both CRLF and
// bare LF conventions since scripts commonly emit either.
func splitHeaderBlock(out []byte) (head, body []byte, ok bool) {
	if i := bytes.Index(out, []byte("\r\n\r\n")); i >= 0 {
		return out[:i], out[i+4:], true
	}
	if i := bytes.Index(out, []byte("\n\n")); i >= 0 {
		return out[:i], out[i+2:], true
	}
	return nil, nil, false
}

func splitLines(b []byte) [][]byte {
	lines := bytes.Split(b, []byte("\n"))
	for i, ln := range lines {
		lines[i] = bytes.TrimSuffix(ln, []byte("\r"))
	}
	return lines
}

func upperSnake(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return r - ('a' - 'A')
	case r == '-':
		return '_'
	}
	return r
}
