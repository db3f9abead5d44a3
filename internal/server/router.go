package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/helseflora/floracache/internal/cache"
	"github.com/helseflora/floracache/internal/logging"
	"github.com/helseflora/floracache/internal/upstream"
)

// RequestRecorder 接收每个请求的耗时与状态，通常由 metrics 包实现。
type RequestRecorder interface {
	RecordRequest(method, route string, status int, elapsed time.Duration)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger      *logrus.Logger
	Coordinator *cache.Coordinator
	// Upstream 可选；为 nil 或未启用时 /api 路由返回 503。
	Upstream   *upstream.Client
	Recorder   RequestRecorder
	ListenPort int
}

const (
	contextKeyRequestID = "_floracache_request_id"
	contextKeyCacheHit  = "_floracache_cache_hit"
	contextKeyUpstream  = "_floracache_upstream"

	// HeaderCacheHit 标记缓存读取是否命中。
	HeaderCacheHit = "X-Floracache-Hit"
)

// NewApp builds a Fiber application with request-id middleware, structured
// request logging and the cache routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Coordinator == nil {
		return nil, errors.New("cache coordinator is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	h := &cacheHandlers{coord: opts.Coordinator, upstream: opts.Upstream, logger: opts.Logger}
	app.Put("/cache/:key", h.save)
	app.Get("/cache/:key", h.load)
	app.Delete("/cache/:key", h.evict)
	app.Patch("/cache/:key", h.enrich)
	app.Post("/cache/:key/items", h.appendItem)
	app.Get("/-/user", h.user)
	app.Delete("/-/user", h.logout)
	app.Get("/api/:key/*", h.loadOrFetch)

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并在请求结束后输出访问日志。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		route := string(c.Request().URI().Path())
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		if opts.Recorder != nil && !isDiagnosticsPath(route) {
			opts.Recorder.RecordRequest(c.Method(), route, status, time.Since(started))
		}

		hit, _ := c.Locals(contextKeyCacheHit).(bool)
		upstreamPath, _ := c.Locals(contextKeyUpstream).(string)
		fields := logging.RequestFields(c.Method(), string(c.Request().URI().Path()), reqID, upstreamPath, status, hit)
		fields["action"] = "request"
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		entry := opts.Logger.WithFields(fields)
		if err != nil {
			entry.WithError(err).Warn("request_failed")
		} else if !isDiagnosticsPath(route) {
			entry.Info("request_completed")
		}
		return err
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/") && path != "/-/user"
}
