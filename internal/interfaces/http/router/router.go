// Package router assembles the HTTP API from per-area route groups.
package router

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// Router mounts route groups under /api/<version> and keeps a table of
// every route it registered.
type Router struct {
	engine     *gin.Engine
	apiVersion string
	groups     []*RouteGroup
	routes     []RouteInfo
}

// Option configures a Router
type Option func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) Option {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a Router on engine.
func NewRouter(engine *gin.Engine, opts ...Option) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount queues a group to be registered by Setup.
func (r *Router) Mount(groups ...*RouteGroup) *Router {
	r.groups = append(r.groups, groups...)
	return r
}

// Setup registers every mounted group under the versioned API prefix.
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, g := range r.groups {
		r.routes = append(r.routes, g.register(api)...)
	}
}

// Routes returns the registered API routes sorted by path then method.
func (r *Router) Routes() []RouteInfo {
	out := append([]RouteInfo(nil), r.routes...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Group  string
	Method string
	Path   string
}

// RouteGroup collects the routes of one API area, such as sync or jobs.
type RouteGroup struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewRouteGroup creates a group mounted at prefix.
func NewRouteGroup(name, prefix string) *RouteGroup {
	return &RouteGroup{name: name, prefix: prefix}
}

// Use adds middleware that runs before every route of the group.
func (g *RouteGroup) Use(middleware ...gin.HandlerFunc) *RouteGroup {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// Handle registers a route for method.
func (g *RouteGroup) Handle(method, path string, handlers ...gin.HandlerFunc) *RouteGroup {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
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
func (g *RouteGroup) Name() string {
	return g.name
}

// Prefix returns the group prefix
func (g *RouteGroup) Prefix() string {
	return g.prefix
}

func (g *RouteGroup) register(parent *gin.RouterGroup) []RouteInfo {
	group := parent.Group(g.prefix)
	if len(g.middleware) > 0 {
		group.Use(g.middleware...)
	}
	infos := make([]RouteInfo, 0, len(g.routes))
	for _, rt := range g.routes {
		group.Handle(rt.method, rt.path, rt.handlers...)
		infos = append(infos, RouteInfo{
			Group:  g.name,
			Method: rt.method,
			Path:   joinPath(group.BasePath(), rt.path),
		})
	}
	return infos
}

func joinPath(base, rel string) string {
	if rel == "" || rel == "/" {
		return base
	}
	if base != "" && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if rel[0] != '/' {
		rel = "/" + rel
	}
	return base + rel
}
