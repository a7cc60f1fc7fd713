package router

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AKMHZJ/localserver/pkg/cgi"
	"github.com/AKMHZJ/localserver/pkg/config"
	"github.com/AKMHZJ/localserver/pkg/httpcodec"
	"github.com/AKMHZJ/localserver/pkg/logger"
)

// Router turns a parsed request plus its listener identity into a response.
// It is invoked synchronously from the reactor between poll wakes.
type Router struct {
	cgiHandler cgi.Handler
}

// New returns a router whose CGI children are bounded by cgiTimeout.
func New(cgiTimeout time.Duration) *Router {
	return &Router{cgiHandler: cgi.Handler{Timeout: cgiTimeout}}
}

// Handle selects the virtual host and route for the request and dispatches
// to the matching handler. remoteAddr is the peer IP, used for CGI.
func (rt *Router) Handle(req *httpcodec.Request, ln *config.ListenerSpec, remoteAddr string) *httpcodec.Response {
	vhost := selectVHost(ln, req.Host())

	path, err := url.PathUnescape(req.Path)
	if err != nil {
		return errorResponse(400, vhost)
	}

	route := matchRoute(vhost, path)
	if route == nil {
		return errorResponse(404, vhost)
	}

	if !methodAllowed(route, req.Method) {
		resp := errorResponse(405, vhost)
		resp.Header.Set("Allow", allowValue(route))
		return resp
	}

	if route.Redirect != "" {
		resp := httpcodec.NewResponse(route.RedirectStatus)
		resp.Header.Set("Location", route.Redirect)
		return resp
	}

	switch req.Method {
	case httpcodec.MethodGet:
		return rt.handleGet(req, path, route, vhost)
	case httpcodec.MethodPost:
		return rt.handlePost(req, path, route, vhost, ln, remoteAddr)
	case httpcodec.MethodDelete:
		return rt.handleDelete(path, route, vhost)
	}
	// unreachable: methodAllowed only passes GET/POST/DELETE
	return errorResponse(405, vhost)
}

// selectVHost matches the Host header against each virtual host's name set;
// the listener's first host is the default.
func selectVHost(ln *config.ListenerSpec, host string) *config.ServerConfig {
	for _, v := range ln.VHost {
		for _, name := range v.ServerNames {
			if strings.EqualFold(name, host) {
				return v
			}
		}
	}
	return ln.VHost[0]
}

// matchRoute returns the route with the longest prefix of path ending on a
// segment boundary. Ties keep the earlier declaration.
func matchRoute(vhost *config.ServerConfig, path string) *config.RouteConfig {
	var best *config.RouteConfig
	bestLen := -1
	for i := range vhost.Routes {
		r := &vhost.Routes[i]
		if !prefixMatches(r.Path, path) {
			continue
		}
		if len(r.Path) > bestLen {
			best = r
			bestLen = len(r.Path)
		}
	}
	return best
}

// prefixMatches reports whether routePath is a segment-boundary prefix of
// path: /a matches /a and /a/b, never /ab.
func prefixMatches(routePath, path string) bool {
	rp := strings.TrimSuffix(routePath, "/")
	if rp == "" {
		return true
	}
	if !strings.HasPrefix(path, rp) {
		return false
	}
	rest := path[len(rp):]
	return rest == "" || rest[0] == '/'
}

func methodAllowed(route *config.RouteConfig, method string) bool {
	switch method {
	case httpcodec.MethodGet, httpcodec.MethodPost, httpcodec.MethodDelete:
	default:
		return false
	}
	if len(route.Methods) == 0 {
		return true
	}
	for _, m := range route.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func allowValue(route *config.RouteConfig) string {
	if len(route.Methods) == 0 {
		return "GET, POST, DELETE"
	}
	return strings.Join(route.Methods, ", ")
}

// VHostFor exposes virtual-host selection to the reactor, which needs it to
// pick error pages for requests that fail before dispatch.
func VHostFor(ln *config.ListenerSpec, host string) *config.ServerConfig {
	return selectVHost(ln, host)
}

// EffectiveBodyLimit resolves the body ceiling for a host name on the given
// listener. The reactor installs this as the parser's limit callback so the
// per-host limit applies as soon as the header block is complete.
func EffectiveBodyLimit(ln *config.ListenerSpec) func(host string) int64 {
	return func(host string) int64 {
		return selectVHost(ln, host).ClientMaxBodySize.Int64()
	}
}

func listenerPort(ln *config.ListenerSpec) string { return strconv.Itoa(ln.Port) }

func logRequest(req *httpcodec.Request, status int) {
	logger.Debug("request", "method", req.Method, "target", req.Target, "status", status)
}
