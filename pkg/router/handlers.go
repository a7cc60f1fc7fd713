package router

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AKMHZJ/localserver/pkg/cgi"
	"github.com/AKMHZJ/localserver/pkg/config"
	"github.com/AKMHZJ/localserver/pkg/httpcodec"
	"github.com/AKMHZJ/localserver/pkg/logger"
	"github.com/AKMHZJ/localserver/pkg/mimetype"
)

var uploadSeq uint64

// resolvePath maps a request path onto the route's filesystem root. The
// cleaned result must stay inside the root; anything that escapes is a
// traversal attempt.
func resolvePath(route *config.RouteConfig, reqPath string) (string, bool) {
	rel := strings.TrimPrefix(reqPath, strings.TrimSuffix(route.Path, "/"))
	rel = strings.TrimPrefix(rel, "/")
	root := filepath.Clean(route.Root)
	target := filepath.Clean(filepath.Join(root, rel))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func (rt *Router) handleGet(req *httpcodec.Request, reqPath string, route *config.RouteConfig, vhost *config.ServerConfig) *httpcodec.Response {
	if route.Root == "" {
		return errorResponse(404, vhost)
	}
	target, ok := resolvePath(route, reqPath)
	if !ok {
		return errorResponse(403, vhost)
	}
	fi, err := os.Stat(target)
	if err != nil {
		return statError(err, vhost)
	}
	if fi.IsDir() {
		if route.Index != "" {
			idx := filepath.Join(target, route.Index)
			if ifi, err := os.Stat(idx); err == nil && !ifi.IsDir() {
				return serveFile(idx, vhost)
			}
		}
		if route.Autoindex {
			return listDirectory(target, reqPath, vhost)
		}
		return errorResponse(403, vhost)
	}
	return serveFile(target, vhost)
}

func serveFile(target string, vhost *config.ServerConfig) *httpcodec.Response {
	body, err := os.ReadFile(target)
	if err != nil {
		return statError(err, vhost)
	}
	resp := httpcodec.NewResponse(200)
	resp.SetBody(body, mimetype.ByPath(target))
	return resp
}

// listDirectory renders the autoindex HTML page for a directory.
func listDirectory(dir, reqPath string, vhost *config.ServerConfig) *httpcodec.Response {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return statError(err, vhost)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>Index of %s</title></head><body>\n", reqPath)
	fmt.Fprintf(&b, "<h1>Index of %s</h1><hr><ul>\n", reqPath)
	if reqPath != "/" {
		b.WriteString(`<li><a href="../">../</a></li>` + "\n")
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		href := path.Join(reqPath, name)
		if e.IsDir() {
			href += "/"
		}
		fmt.Fprintf(&b, "<li><a href=%q>%s</a></li>\n", href, name)
	}
	b.WriteString("</ul><hr></body></html>\n")

	resp := httpcodec.NewResponse(200)
	resp.SetBody([]byte(b.String()), "text/html")
	return resp
}

func (rt *Router) handlePost(req *httpcodec.Request, reqPath string, route *config.RouteConfig, vhost *config.ServerConfig, ln *config.ListenerSpec, remoteAddr string) *httpcodec.Response {
	if interp, ok := cgiInterpreter(route, reqPath); ok {
		return rt.runCGI(req, reqPath, route, vhost, ln, remoteAddr, interp)
	}
	if route.UploadDir != "" {
		return handleUpload(req, route, vhost)
	}
	resp := errorResponse(405, vhost)
	resp.Header.Set("Allow", allowValue(route))
	return resp
}

func cgiInterpreter(route *config.RouteConfig, reqPath string) (string, bool) {
	ext := path.Ext(reqPath)
	if ext == "" {
		return "", false
	}
	interp, ok := route.CGI[ext]
	return interp, ok
}

func (rt *Router) runCGI(req *httpcodec.Request, reqPath string, route *config.RouteConfig, vhost *config.ServerConfig, ln *config.ListenerSpec, remoteAddr string, interp string) *httpcodec.Response {
	script, ok := resolvePath(route, reqPath)
	if !ok {
		return errorResponse(403, vhost)
	}
	if fi, err := os.Stat(script); err != nil || fi.IsDir() {
		return errorResponse(404, vhost)
	}
	serverName := vhost.Host
	if len(vhost.ServerNames) > 0 {
		serverName = vhost.ServerNames[0]
	}
	resp := rt.cgiHandler.Execute(req, cgi.Params{
		Interpreter: interp,
		ScriptPath:  script,
		ScriptName:  reqPath,
		PathInfo:    reqPath,
		ServerName:  serverName,
		ServerPort:  listenerPort(ln),
		RemoteAddr:  remoteAddr,
	})
	logRequest(req, resp.Status)
	return resp
}

// handleUpload stores the request body as a new file under the route's
// upload directory. The X-Filename header names the file; otherwise a unique
// name is generated.
func handleUpload(req *httpcodec.Request, route *config.RouteConfig, vhost *config.ServerConfig) *httpcodec.Response {
	name := filepath.Base(req.Header.Get("X-Filename"))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("upload-%d-%d", time.Now().UnixNano(), atomic.AddUint64(&uploadSeq, 1))
	}
	if err := os.MkdirAll(route.UploadDir, 0o755); err != nil {
		logger.Error("upload_dir_create_failed", "dir", route.UploadDir, "error", err)
		return errorResponse(500, vhost)
	}
	dest := filepath.Join(route.UploadDir, name)
	// write through a temp file so partial content never appears under the
	// final name
	tmp, err := os.CreateTemp(route.UploadDir, ".upload-*.part")
	if err != nil {
		logger.Error("upload_tmp_failed", "dir", route.UploadDir, "error", err)
		return errorResponse(500, vhost)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(req.Body); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return errorResponse(500, vhost)
	}
	tmp.Close()
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return errorResponse(500, vhost)
	}
	logger.Info("upload_stored", "path", dest, "bytes", len(req.Body))

	resp := httpcodec.NewResponse(201)
	resp.Header.Set("Location", path.Join(strings.TrimSuffix(route.Path, "/"), name))
	return resp
}

func (rt *Router) handleDelete(reqPath string, route *config.RouteConfig, vhost *config.ServerConfig) *httpcodec.Response {
	if route.Root == "" {
		return errorResponse(404, vhost)
	}
	target, ok := resolvePath(route, reqPath)
	if !ok {
		return errorResponse(403, vhost)
	}
	if _, err := os.Stat(target); err != nil {
		return statError(err, vhost)
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return errorResponse(403, vhost)
		}
		logger.Error("delete_failed", "path", target, "error", err)
		return errorResponse(500, vhost)
	}
	logger.Info("deleted", "path", target)
	return httpcodec.NewResponse(204)
}

// statError maps filesystem probe errors onto the HTTP error surface.
func statError(err error, vhost *config.ServerConfig) *httpcodec.Response {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errorResponse(404, vhost)
	case errors.Is(err, fs.ErrPermission):
		return errorResponse(403, vhost)
	default:
		return errorResponse(500, vhost)
	}
}
