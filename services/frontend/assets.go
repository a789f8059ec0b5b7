package frontend

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/styles.css
var staticAssets embed.FS

// StaticHandler serves the embedded assets with a short cache lifetime so a
// redeploy reaches open dashboards within minutes.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticAssets, "static")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		files.ServeHTTP(w, r)
	})
}
