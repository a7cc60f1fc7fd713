package mimetype

import "testing"

func TestByPath(t *testing.T) {
	cases := map[string]string{
		"/www/index.html":  "text/html",
		"/www/style.CSS":   "text/css",
		"/www/app.js":      "application/javascript",
		"/www/logo.png":    "image/png",
		"/www/data.json":   "application/json",
		"/www/unknown.xyz": DefaultType,
		"/www/noext":       DefaultType,
	}
	for path, want := range cases {
		if got := ByPath(path); got != want {
			t.Fatalf("%s: got %q want %q", path, got, want)
		}
	}
}
