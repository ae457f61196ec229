package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/appconnect/internal/auth"
	"github.com/loykin/appconnect/internal/connect"
	"github.com/loykin/appconnect/internal/transport"
	"golang.org/x/time/rate"
)

// Router provides embeddable HTTP handlers over a transport.
// Endpoints:
//
//	GET  {basePath}/health   (never authenticated)
//	GET  {basePath}/running  query: path=...
//	GET  {basePath}/query    query: path=...
//	POST {basePath}/connect  body: {"path"}
//	POST {basePath}/notify   body: {"path"}
//	POST {basePath}/launch   body: {"path","event","flags"}
//	POST {basePath}/send     body: {"address","event","timeout","reply"}
//
// basePath may be empty or start with '/'; no trailing slash.
// With WithAuth every endpoint except health requires basic credentials.
type Router struct {
	t        transport.Transport
	coord    *connect.Coordinator
	basePath string
	limiter  *rate.Limiter
	logger   *slog.Logger
	coordOps []connect.Option
	auth     *auth.Basic
}

type Option func(*Router)

// WithRateLimit limits mutating endpoints to rps requests per second.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Router) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithAuth requires basic credentials checked by b. A nil b disables it.
func WithAuth(b *auth.Basic) Option {
	return func(r *Router) { r.auth = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCoordinatorOptions is passed through to connect.New.
func WithCoordinatorOptions(opts ...connect.Option) Option {
	return func(r *Router) { r.coordOps = append(r.coordOps, opts...) }
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/connect, /api/notify, ...
func NewRouter(t transport.Transport, basePath string, opts ...Option) *Router {
	r := &Router{t: t, basePath: sanitizeBase(basePath), logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	r.coord = connect.New(t, r.coordOps...)
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.accessLog)
	r.Register(g.Group(r.basePath))
	return g
}

// Register mounts the endpoints on an existing gin group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.GET("/health", r.handleHealth)
	authed := group.Group("", auth.GinBasicAuth(r.auth))
	authed.GET("/running", r.handleRunning)
	authed.GET("/query", r.handleQuery)
	authed.POST("/connect", r.limit, r.handleConnect)
	authed.POST("/notify", r.limit, r.handleNotify)
	authed.POST("/launch", r.limit, r.handleLaunch)
	authed.POST("/send", r.limit, r.handleSend)
}

func (r *Router) limit(c *gin.Context) {
	if r.limiter != nil && !r.limiter.Allow() {
		writeJSON(c, http.StatusTooManyRequests, errorResp{Error: "rate limit exceeded", Kind: kindRateLimited})
		c.Abort()
		return
	}
	c.Next()
}

func (r *Router) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	r.logger.Debug("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

// NewServer starts a standalone HTTP server on addr using this router.
// A non-nil tlsCfg serves HTTPS. Listen errors are returned; errors after
// startup are logged.
func NewServer(addr string, h http.Handler, tlsCfg *tls.Config, logger *slog.Logger) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// sends may wait up to maxSendTimeout for a reply
		WriteTimeout: maxSendTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "addr", addr, "error", err)
		}
	}()
	return server, nil
}

// Shutdown stops srv, waiting up to timeout for in-flight requests.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
