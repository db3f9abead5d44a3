package routes

import (
	"net/http"
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/helseflora/floracache/internal/cache"
)

// DiagnosticsOptions 汇总 /-/ 诊断接口需要展示的信息。
type DiagnosticsOptions struct {
	Version  string
	Backends []string
	Policy   cache.TTLPolicy
	// Metrics 为 nil 时不注册 /-/metrics。
	Metrics http.Handler
}

type healthPayload struct {
	Status   string     `json:"status"`
	Version  string     `json:"version"`
	Backends []string   `json:"backends"`
	TTL      ttlPayload `json:"ttl"`
}

type ttlPayload struct {
	DefaultSeconds int64  `json:"default_seconds"`
	UserSeconds    int64  `json:"user_seconds"`
	UserKey        string `json:"user_key"`
}

// RegisterDiagnosticRoutes 暴露 /-/healthz 与 /-/metrics，供探活与 Prometheus 抓取。
func RegisterDiagnosticRoutes(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil {
		return
	}

	payload := encodeHealth(opts)
	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(payload)
	})

	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics))
	}
}

func encodeHealth(opts DiagnosticsOptions) healthPayload {
	backends := append([]string(nil), opts.Backends...)
	sort.Strings(backends)
	if backends == nil {
		backends = []string{}
	}
	policy := opts.Policy
	if policy.Default <= 0 {
		policy = cache.DefaultPolicy()
	}
	return healthPayload{
		Status:   "ok",
		Version:  opts.Version,
		Backends: backends,
		TTL: ttlPayload{
			DefaultSeconds: int64(policy.Default.Seconds()),
			UserSeconds:    int64(policy.User.Seconds()),
			UserKey:        policy.UserKey,
		},
	}
}
