package server

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/helseflora/floracache/internal/cache"
	"github.com/helseflora/floracache/internal/record"
	"github.com/helseflora/floracache/internal/upstream"
)

type cacheHandlers struct {
	coord    *cache.Coordinator
	upstream *upstream.Client
	logger   *logrus.Logger
}

type enrichRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (h *cacheHandlers) save(c fiber.Ctx) error {
	rec, err := h.coord.Schema().Parse(c.Body())
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_json")
	}
	if err := h.coord.Save(requestContext(c), c.Params("key"), rec); err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_key")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *cacheHandlers) load(c fiber.Ctx) error {
	rec, ok := h.coord.Load(requestContext(c), c.Params("key"))
	return renderRecord(c, rec, ok)
}

func (h *cacheHandlers) evict(c fiber.Ctx) error {
	h.coord.Evict(requestContext(c), c.Params("key"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *cacheHandlers) appendItem(c fiber.Ctx) error {
	parsed, err := h.coord.Schema().Parse(c.Body())
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_json")
	}
	item, ok := parsed.Value().(map[string]any)
	if !ok {
		return renderError(c, fiber.StatusBadRequest, "item_must_be_object")
	}
	if err := h.coord.AppendItem(requestContext(c), c.Params("key"), item); err != nil {
		if errors.Is(err, cache.ErrNotCollection) {
			return renderError(c, fiber.StatusConflict, "not_a_collection")
		}
		return renderError(c, fiber.StatusBadRequest, "invalid_item")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *cacheHandlers) enrich(c fiber.Ctx) error {
	var req enrichRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_json")
	}
	ok, err := h.coord.Enrich(requestContext(c), c.Params("key"), req.Field, req.Value)
	switch {
	case errors.Is(err, cache.ErrImageField):
		return renderError(c, fiber.StatusBadRequest, "image_field_readonly")
	case err != nil:
		return renderError(c, fiber.StatusBadRequest, "invalid_field")
	case !ok:
		return renderError(c, fiber.StatusNotFound, "cache_miss")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *cacheHandlers) user(c fiber.Ctx) error {
	rec, ok := h.coord.User(requestContext(c))
	return renderRecord(c, rec, ok)
}

func (h *cacheHandlers) logout(c fiber.Ctx) error {
	removed := h.coord.Logout(requestContext(c))
	return c.JSON(fiber.Map{"removed": removed})
}

func (h *cacheHandlers) loadOrFetch(c fiber.Ctx) error {
	if h.upstream == nil || !h.upstream.Enabled() {
		return renderError(c, fiber.StatusServiceUnavailable, "upstream_disabled")
	}
	path := "/" + strings.TrimPrefix(c.Params("*"), "/")
	if query := string(c.Request().URI().QueryString()); query != "" {
		path += "?" + query
	}
	c.Locals(contextKeyUpstream, path)

	rec, hit, err := h.upstream.LoadOrFetch(requestContext(c), c.Params("key"), path)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"key":        c.Params("key"),
			"path":       path,
			"request_id": RequestID(c),
		}).Warn("upstream_fetch_failed")
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			c.Set("X-Upstream-Status", strconv.Itoa(statusErr.Code))
		}
		return renderError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	c.Locals(contextKeyCacheHit, hit)
	c.Set(HeaderCacheHit, strconv.FormatBool(hit))
	return c.JSON(rec.Value())
}

func renderRecord(c fiber.Ctx, rec record.Record, ok bool) error {
	c.Locals(contextKeyCacheHit, ok)
	c.Set(HeaderCacheHit, strconv.FormatBool(ok))
	if !ok {
		return renderError(c, fiber.StatusNotFound, "cache_miss")
	}
	return c.JSON(rec.Value())
}

func renderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
