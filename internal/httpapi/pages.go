package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"refillpos/internal/session"
)

const sessionCookie = "refillpos_token"

var pageTitles = map[string]string{
	"/":          "Refill POS",
	"/pos":       "Kasir",
	"/products":  "Produk",
	"/customers": "Pelanggan",
	"/reports":   "Laporan",
}

func (a *API) mountPages(r chi.Router) {
	r.Get(a.routes.Login, a.handlePage("Masuk"))
	for route, title := range pageTitles {
		if route == a.routes.Login {
			continue
		}
		r.Get(route, a.handlePage(title))
	}
}

// sessionToken finds the access token of a browser request. Pages and the
// event stream cannot send headers, so the cookie and the access_token query
// parameter are accepted besides the bearer header.
func sessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// resolveGate runs the persisted-session check for the request and records
// route as the viewer's current route.
func (a *API) resolveGate(r *http.Request, route string) (*session.Gate, session.Loader, session.Decision) {
	gate := session.NewGate(a.routes)
	load := a.auth.SessionLoader(sessionToken(r))
	if err := gate.Resolve(r.Context(), load); err != nil {
		a.logger.Debug("session not resolved", zap.Error(err))
	}
	if strings.TrimSpace(route) == "" {
		route = a.routes.Default
	}
	return gate, load, gate.Navigate(route)
}

func (a *API) handleSessionDecision(w http.ResponseWriter, r *http.Request) {
	gate, _, decision := a.resolveGate(r, r.URL.Query().Get("route"))
	writeJSON(w, http.StatusOK, map[string]any{
		"decision": decision,
		"session":  gate.Session(),
	})
}

// handleSessionEvents streams gate decisions for one viewer. The first event is
// the decision for the requested route; later events follow sign-ins,
// sign-outs and refreshes of the same user, from any server instance.
func (a *API) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	gate, load, decision := a.resolveGate(r, r.URL.Query().Get("route"))

	events, unsubscribe, err := a.auth.Broker().Subscribe(r.Context())
	if err != nil {
		a.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise end the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(d session.Decision) {
		payload, err := json.Marshal(d)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(w, "event: decision\ndata: %s\n\n", payload)
		_ = rc.Flush()
	}
	send(decision)

	if err := gate.Watch(r.Context(), events, load, send); err != nil && r.Context().Err() == nil {
		a.logger.Warn("session event stream ended", zap.Error(err))
	}
}

func (a *API) handlePage(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, decision := a.resolveGate(r, r.URL.Path)
		if decision.Redirect != "" {
			http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
			return
		}

		var buf bytes.Buffer
		err := pageTmpl.Execute(&buf, map[string]any{
			"Title": title,
			"Route": decision.Route,
		})
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}}</title>
</head>
<body data-route="{{.Route}}">
  <main id="app"><h1>{{.Title}}</h1></main>
  <script>
    const events = new EventSource("/api/v1/session/events?route=" + encodeURIComponent({{.Route}}));
    events.addEventListener("decision", (e) => {
      const d = JSON.parse(e.data);
      if (d.redirect) { window.location.assign(d.redirect); }
    });
  </script>
</body>
</html>
`))
