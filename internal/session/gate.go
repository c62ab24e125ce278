// Package session decides which pages a terminal may render for the current
// session and re-evaluates that decision when the session changes elsewhere.
//
// The gate is a routing guard only. API authorization is enforced by the HTTP
// layer independently of it.
package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

type Status int

const (
	StatusLoading Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "loading"
	}
}

type Routes struct {
	Login   string
	Default string
}

func DefaultRoutes() Routes {
	return Routes{Login: "/login", Default: "/pos"}
}

// Decision is what the page layer should do for a route. Exactly one of
// Loading, Redirect and Render is set.
type Decision struct {
	Status   string `json:"status"`
	Route    string `json:"route"`
	Loading  bool   `json:"loading,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Render   bool   `json:"render,omitempty"`
}

// Decide applies the redirect policy: block while loading, send anonymous users
// to the login route and signed-in users away from it.
func Decide(status Status, route string, routes Routes) Decision {
	route = normalizeRoute(route)
	d := Decision{Status: status.String(), Route: route}
	onLogin := route == normalizeRoute(routes.Login)

	switch {
	case status == StatusLoading:
		d.Loading = true
	case status == StatusAnonymous && !onLogin:
		d.Redirect = routes.Login
	case status == StatusAuthenticated && onLogin:
		d.Redirect = routes.Default
	default:
		d.Render = true
	}
	return d
}

type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Loader returns the persisted session, or nil when there is none.
type Loader func(ctx context.Context) (*Session, error)

// Gate tracks one viewer's session status and current route.
type Gate struct {
	mu       sync.RWMutex
	routes   Routes
	status   Status
	session  *Session
	route    string
	username string
}

func NewGate(routes Routes) *Gate {
	if strings.TrimSpace(routes.Login) == "" || strings.TrimSpace(routes.Default) == "" {
		routes = DefaultRoutes()
	}
	return &Gate{routes: routes, status: StatusLoading, route: routes.Default}
}

func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

func (g *Gate) Session() *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil
	}
	s := *g.session
	return &s
}

// Resolve runs the persisted-session check. A failing loader leaves the viewer
// anonymous and returns the error.
func (g *Gate) Resolve(ctx context.Context, load Loader) error {
	s, err := load(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil || s == nil {
		g.status = StatusAnonymous
		g.session = nil
		return err
	}
	g.status = StatusAuthenticated
	g.session = s
	g.username = s.Username
	return nil
}

// Navigate records route as current and returns the decision for it.
func (g *Gate) Navigate(route string) Decision {
	g.mu.Lock()
	g.route = normalizeRoute(route)
	status := g.status
	g.mu.Unlock()
	return Decide(status, route, g.routes)
}

// Current returns the decision for the last navigated route.
func (g *Gate) Current() Decision {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Decide(g.status, g.route, g.routes)
}

// Watch re-resolves the session on every event for the watched user and
// reports the decision for the current route. It returns when ctx is done or
// events is closed.
func (g *Gate) Watch(ctx context.Context, events <-chan Event, load Loader, onDecision func(Decision)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !g.watches(ev) {
				continue
			}
			// A failed load leaves the viewer anonymous, which is itself a decision.
			_ = g.Resolve(ctx, load)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			onDecision(g.Current())
		}
	}
}

func (g *Gate) watches(ev Event) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.username == "" || strings.EqualFold(ev.Username, g.username)
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "/"
	}
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if len(route) > 1 {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}
