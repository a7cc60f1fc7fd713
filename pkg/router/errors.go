package router

import (
	"fmt"
	"os"

	"github.com/AKMHZJ/localserver/pkg/config"
	"github.com/AKMHZJ/localserver/pkg/httpcodec"
)

// errorResponse builds a response for the given status. When the virtual
// host configures an error page for the code, its file contents become the
// body; otherwise a minimal built-in page is used.
func errorResponse(status int, vhost *config.ServerConfig) *httpcodec.Response {
	resp := httpcodec.NewResponse(status)
	if vhost != nil {
		if page, ok := vhost.ErrorPages[status]; ok {
			if body, err := os.ReadFile(page); err == nil {
				resp.SetBody(body, "text/html")
				return resp
			}
		}
	}
	body := fmt.Sprintf("<html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>\n",
		status, httpcodec.ReasonPhrase(status), status, httpcodec.ReasonPhrase(status))
	resp.SetBody([]byte(body), "text/html")
	return resp
}

// ErrorResponse is the reactor-facing variant for failures the parser reports
// before dispatch (parse errors, oversized bodies). vhost may be nil.
func ErrorResponse(status int, vhost *config.ServerConfig) *httpcodec.Response {
	return errorResponse(status, vhost)
}
