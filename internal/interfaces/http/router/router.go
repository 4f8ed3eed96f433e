package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/erp/weclapp-migration/internal/interfaces/http/middleware"
)

// RouteRegistrar mounts its routes below a versioned API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version>
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the version segment of the API prefix
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithMiddleware runs middleware in front of every API route
func WithMiddleware(middleware ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// NewRouter creates a Router for engine, defaulting to v1
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues a registrar for Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup mounts every registered registrar
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	api.Use(r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// Route is one endpoint. A non-empty Scope is enforced with
// middleware.RequireScope before Handler runs.
type Route struct {
	Method  string
	Path    string
	Scope   string
	Handler gin.HandlerFunc
}

// RouteGroup is a prefix-sharing set of routes and nested groups
type RouteGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []Route
	children   []*RouteGroup
}

// NewRouteGroup creates a group mounted at prefix
func NewRouteGroup(prefix string) *RouteGroup {
	return &RouteGroup{prefix: prefix}
}

// Use adds middleware that runs for this group and its children
func (g *RouteGroup) Use(middleware ...gin.HandlerFunc) *RouteGroup {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// Handle adds a route guarded by scope
func (g *RouteGroup) Handle(method, relPath, scope string, h gin.HandlerFunc) *RouteGroup {
	g.routes = append(g.routes, Route{Method: method, Path: relPath, Scope: scope, Handler: h})
	return g
}

// GET adds a GET route guarded by scope
func (g *RouteGroup) GET(relPath, scope string, h gin.HandlerFunc) *RouteGroup {
	return g.Handle(http.MethodGet, relPath, scope, h)
}

// POST adds a POST route guarded by scope
func (g *RouteGroup) POST(relPath, scope string, h gin.HandlerFunc) *RouteGroup {
	return g.Handle(http.MethodPost, relPath, scope, h)
}

// Group nests a child group below this one
func (g *RouteGroup) Group(prefix string) *RouteGroup {
	child := NewRouteGroup(prefix)
	g.children = append(g.children, child)
	return child
}

// Routes lists every route of the group tree with its path relative to
// the mount point
func (g *RouteGroup) Routes() []Route {
	var out []Route
	for _, r := range g.routes {
		r.Path = joinPath(g.prefix, r.Path)
		out = append(out, r)
	}
	for _, child := range g.children {
		for _, r := range child.Routes() {
			r.Path = joinPath(g.prefix, r.Path)
			out = append(out, r)
		}
	}
	return out
}

// RegisterRoutes implements RouteRegistrar
func (g *RouteGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(g.prefix)
	group.Use(g.middleware...)

	for _, r := range g.routes {
		handlers := make([]gin.HandlerFunc, 0, 2)
		if r.Scope != "" {
			handlers = append(handlers, middleware.RequireScope(r.Scope))
		}
		group.Handle(r.Method, r.Path, append(handlers, r.Handler)...)
	}
	for _, child := range g.children {
		child.RegisterRoutes(group)
	}
}

func joinPath(prefix, rel string) string {
	if rel == "" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	return path.Join("/", prefix, rel)
}
