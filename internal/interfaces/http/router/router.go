// Package router assembles the gin engine and the versioned API routes.
package router

import (
	"net/http"
	"path"
	"sort"

	"github.com/gin-gonic/gin"
)

// Access is the caller class a route group admits
type Access int

const (
	// AccessPublic routes carry no bearer token (probes, gateway callbacks)
	AccessPublic Access = iota
	// AccessAccount routes require an authenticated account
	AccessAccount
	// AccessAdmin routes additionally require an admin capability
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessAccount:
		return "account"
	case AccessAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// RouteInfo describes one mounted route
type RouteInfo struct {
	Method string
	Path   string
	Group  string
	Access Access
}

// Router mounts route groups under /api/<version>. Each group runs the
// shared middleware, then the guards of its access level, then the
// post-guard middleware (which may rely on the authenticated account).
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	guards     map[Access][]gin.HandlerFunc
	postGuard  []gin.HandlerFunc
	groups     []*RouteGroup
	mounted    []RouteInfo
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		guards:     make(map[Access][]gin.HandlerFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware that runs on every versioned route before any guard
func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, middleware...)
	return r
}

// Guard adds middleware for groups of the given access level. Admin
// groups run the account guards first.
func (r *Router) Guard(access Access, guards ...gin.HandlerFunc) *Router {
	r.guards[access] = append(r.guards[access], guards...)
	return r
}

// UseAfterGuard adds middleware that runs once the caller is known
func (r *Router) UseAfterGuard(middleware ...gin.HandlerFunc) *Router {
	r.postGuard = append(r.postGuard, middleware...)
	return r
}

// Register adds route groups to be mounted by Setup
func (r *Router) Register(groups ...*RouteGroup) *Router {
	r.groups = append(r.groups, groups...)
	return r
}

// BasePath returns the versioned prefix, e.g. "/api/v1"
func (r *Router) BasePath() string {
	return "/api/" + r.apiVersion
}

// Setup mounts every registered group on the engine
func (r *Router) Setup() {
	api := r.engine.Group(r.BasePath())
	for _, g := range r.groups {
		chain := make([]gin.HandlerFunc, 0, len(r.middleware)+len(r.postGuard)+4)
		chain = append(chain, r.middleware...)
		chain = append(chain, r.guardChain(g.access)...)
		chain = append(chain, r.postGuard...)
		chain = append(chain, g.middleware...)

		group := api.Group(g.prefix, chain...)
		for _, route := range g.routes {
			group.Handle(route.method, route.path, route.handlers...)
			r.mounted = append(r.mounted, RouteInfo{
				Method: route.method,
				Path:   joinPath(r.BasePath(), g.prefix, route.path),
				Group:  g.name,
				Access: g.access,
			})
		}
	}
}

func (r *Router) guardChain(access Access) []gin.HandlerFunc {
	switch access {
	case AccessAccount:
		return r.guards[AccessAccount]
	case AccessAdmin:
		chain := append([]gin.HandlerFunc{}, r.guards[AccessAccount]...)
		return append(chain, r.guards[AccessAdmin]...)
	default:
		return r.guards[AccessPublic]
	}
}

// Routes lists the mounted routes sorted by path then method
func (r *Router) Routes() []RouteInfo {
	out := append([]RouteInfo(nil), r.mounted...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// RouteGroup is a named set of routes sharing a prefix and an access level
type RouteGroup struct {
	name       string
	prefix     string
	access     Access
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewRouteGroup creates a route group
func NewRouteGroup(name, prefix string, access Access) *RouteGroup {
	return &RouteGroup{name: name, prefix: prefix, access: access}
}

// Use adds middleware that runs after the group's guards
func (g *RouteGroup) Use(middleware ...gin.HandlerFunc) *RouteGroup {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// Handle registers a route for any method
func (g *RouteGroup) Handle(method, path string, handlers ...gin.HandlerFunc) *RouteGroup {
	g.routes = append(g.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return g
}

// GET registers a GET route
func (g *RouteGroup) GET(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.Handle(http.MethodGet, path, handlers...)
}

// POST registers a POST route
func (g *RouteGroup) POST(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.Handle(http.MethodPost, path, handlers...)
}

// PUT registers a PUT route
func (g *RouteGroup) PUT(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.Handle(http.MethodPut, path, handlers...)
}

// Name returns the group name
func (g *RouteGroup) Name() string { return g.name }

// Access returns the group's access level
func (g *RouteGroup) Access() Access { return g.access }

func joinPath(parts ...string) string {
	joined := path.Join(parts...)
	if joined == "" {
		return "/"
	}
	return joined
}
