package frontend

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/retailops/notifier/internal/render"
)

// dashboardScript opens the session stream and swaps patched elements in
// place. The access token and session id come from the page's query string.
const dashboardScript = `
(function () {
  const params = new URLSearchParams(window.location.search);
  const token = params.get("token");
  const headers = { Authorization: "Bearer " + token };
  let sessionID = params.get("session");

  async function post(path, body) {
    return fetch(path, { method: "POST", headers: Object.assign({ "Content-Type": "application/json" }, headers), body: body ? JSON.stringify(body) : undefined });
  }

  async function open() {
    if (!sessionID) {
      const res = await post("/api/v1/sessions");
      sessionID = (await res.json()).id;
    }
    const stream = new EventSource("/api/v1/sessions/" + sessionID + "/events?token=" + encodeURIComponent(token));
    stream.addEventListener("datastar-patch-elements", (evt) => {
      const lines = evt.data.split("\n");
      const html = lines.filter((l) => l.startsWith("elements ")).map((l) => l.slice(9)).join("");
      const tpl = document.createElement("template");
      tpl.innerHTML = html;
      const next = tpl.content.firstElementChild;
      const current = next && document.getElementById(next.id);
      if (current) current.replaceWith(next);
    });
    window.addEventListener("focus", () => post("/api/v1/sessions/" + sessionID + "/focus"));
    document.addEventListener("visibilitychange", () => post("/api/v1/sessions/" + sessionID + "/visibility", { visible: document.visibilityState === "visible" }));
    document.addEventListener("click", (evt) => {
      const action = evt.target.dataset && evt.target.dataset.action;
      if (action === "mark-seen") post("/api/v1/sessions/" + sessionID + "/seen");
      if (action === "dismiss-toast") post("/api/v1/sessions/" + sessionID + "/toast/dismiss");
    });
  }
  open();
})();
`

// DashboardPage is the shell the session stream patches into.
func DashboardPage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"/>`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"/>`+
			`<title>Operations notifier</title><link rel="stylesheet" href="/static/styles.css"/></head>`+
			`<body><main class="space-y-3"><h1>Operations</h1>`); err != nil {
			return err
		}
		if err := render.Badges("", render.EmptyBadges).Render(ctx, w); err != nil {
			return err
		}
		if err := render.Tracker(render.EmptyTracker).Render(ctx, w); err != nil {
			return err
		}
		if err := render.Toast(nil).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main><script>`+dashboardScript+`</script></body></html>`)
		return err
	})
}
