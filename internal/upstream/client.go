// Package upstream talks to the shop API and keeps the cache coordinator in
// sync with its responses. Requests are issued once; there is no retry.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/helseflora/floracache/internal/cache"
	"github.com/helseflora/floracache/internal/record"
)

const (
	apiKeyParam = "key"
	// MessageField 是写请求响应中的提示信息，缓存前删除。
	MessageField = "msg"
	// ZoneDescriptionField 保存在植物详情首个条目上的生长区描述。
	ZoneDescriptionField = "zone_description"
	plantZonesPath       = "/botany/plantzones"
	maxErrorBody         = 4 << 10
)

// ErrDisabled 表示未配置上游地址。
var ErrDisabled = errors.New("upstream not configured")

// StatusError 描述上游返回的非 2xx 响应。
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s %s: status %d", e.Method, e.Path, e.Code)
}

// Recorder 接收上游调用结果，通常由 metrics 包实现。
type Recorder interface {
	RecordUpstream(method string, err error)
}

// Options 构建 Client 所需依赖，BaseURL 为空时所有请求返回 ErrDisabled。
type Options struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	Coordinator *cache.Coordinator
	Logger      *logrus.Logger
	Recorder    Recorder
}

// RequestOptions 为写请求附加鉴权令牌。
type RequestOptions struct {
	Auth string
}

// Client 是商店 API 的客户端，读写响应都经过缓存协调器。
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	coord    *cache.Coordinator
	logger   *logrus.Logger
	recorder Recorder
}

// New 创建 Client。
func New(opts Options) (*Client, error) {
	if opts.Coordinator == nil {
		return nil, errors.New("upstream client requires a cache coordinator")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:   opts.APIKey,
		http:     httpClient,
		coord:    opts.Coordinator,
		logger:   logger,
		recorder: opts.Recorder,
	}, nil
}

// Enabled 报告是否配置了上游地址。
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Fetch 发起 GET 请求并把响应保存到 key（key 为空时不缓存）。
func (c *Client) Fetch(ctx context.Context, key, path string) (record.Record, error) {
	rec, err := c.do(ctx, http.MethodGet, path, nil, RequestOptions{})
	if err != nil {
		return record.Record{}, err
	}
	c.save(ctx, key, rec)
	return rec, nil
}

// Post 发起 POST 请求，删除响应中的 msg 字段后缓存到 key。
func (c *Client) Post(ctx context.Context, key, path string, body any, opts RequestOptions) (record.Record, error) {
	return c.write(ctx, http.MethodPost, key, path, body, opts)
}

// Put 发起 PUT 请求，语义同 Post。
func (c *Client) Put(ctx context.Context, key, path string, body any, opts RequestOptions) (record.Record, error) {
	return c.write(ctx, http.MethodPut, key, path, body, opts)
}

// Delete 发起 DELETE 请求；dropUser 为 true 时成功后清除用户缓存。
func (c *Client) Delete(ctx context.Context, path string, opts RequestOptions, dropUser bool) error {
	if _, err := c.do(ctx, http.MethodDelete, path, nil, opts); err != nil {
		return err
	}
	if dropUser {
		c.coord.Logout(ctx)
	}
	return nil
}

// LoadOrFetch 优先返回缓存；缓存中存在图片缺失（null）的条目时重新拉取且不覆盖缓存，
// 未命中时拉取并缓存。hit 表示结果是否来自缓存。
func (c *Client) LoadOrFetch(ctx context.Context, key, path string) (rec record.Record, hit bool, err error) {
	if cached, ok := c.coord.Load(ctx, key); ok {
		if !missingImage(cached, c.coord.Schema().ImageField) {
			return cached, true, nil
		}
		c.logger.WithFields(logrus.Fields{"key": key, "path": path}).Info("cache_image_missing_refetch")
		fresh, err := c.do(ctx, http.MethodGet, path, nil, RequestOptions{})
		if err != nil {
			return record.Record{}, false, err
		}
		return fresh, false, nil
	}
	fresh, err := c.Fetch(ctx, key, path)
	if err != nil {
		return record.Record{}, false, err
	}
	return fresh, false, nil
}

// GrowthZone 返回生长区 zoneID 的描述。key 对应的详情缓存已带描述时直接返回，
// 否则请求 /botany/plantzones 并把描述补充到缓存条目上；上游没有该区时返回空串。
func (c *Client) GrowthZone(ctx context.Context, key string, zoneID int) (string, error) {
	if cached, ok := c.coord.Load(ctx, key); ok {
		if desc, ok := zoneDescription(cached); ok {
			return desc, nil
		}
	}

	zones, err := c.do(ctx, http.MethodGet, plantZonesPath, nil, RequestOptions{})
	if err != nil {
		return "", err
	}
	desc, ok := describeZone(zones, zoneID)
	if !ok {
		return "", nil
	}
	if _, err := c.coord.Enrich(ctx, key, ZoneDescriptionField, desc); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("zone_enrich_failed")
	}
	return desc, nil
}

func (c *Client) write(ctx context.Context, method, key, path string, body any, opts RequestOptions) (record.Record, error) {
	rec, err := c.do(ctx, method, path, body, opts)
	if err != nil {
		return record.Record{}, err
	}
	if obj, ok := rec.Value().(map[string]any); ok {
		delete(obj, MessageField)
	}
	c.save(ctx, key, rec)
	return rec, nil
}

func (c *Client) save(ctx context.Context, key string, rec record.Record) {
	if key == "" || rec.IsZero() {
		return
	}
	if err := c.coord.Save(ctx, key, rec); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache_save_failed")
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, opts RequestOptions) (rec record.Record, err error) {
	if !c.Enabled() {
		return record.Record{}, ErrDisabled
	}
	started := time.Now()
	defer func() {
		if c.recorder != nil {
			c.recorder.RecordUpstream(method, err)
		}
		entry := c.logger.WithFields(logrus.Fields{
			"action":     "upstream_request",
			"method":     method,
			"path":       path,
			"elapsed_ms": time.Since(started).Milliseconds(),
		})
		if err != nil {
			entry.WithError(err).Warn("upstream_failed")
			return
		}
		entry.Debug("upstream_completed")
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return record.Record{}, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target, err := url.Parse(c.baseURL + ensureLeadingSlash(path))
	if err != nil {
		return record.Record{}, err
	}
	if c.apiKey != "" {
		query := target.Query()
		query.Set(apiKeyParam, c.apiKey)
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return record.Record{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.Auth != "" {
		req.Header.Set("Authorization", opts.Auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return record.Record{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return record.Record{}, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(snippet)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return record.Record{}, fmt.Errorf("read upstream body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return record.Record{}, nil
	}
	return c.coord.Schema().Parse(data)
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

// missingImage 报告是否有条目的图片字段为 null。
func missingImage(rec record.Record, field string) bool {
	for _, item := range rec.Items() {
		if v, ok := item[field]; ok && v == nil {
			return true
		}
	}
	return false
}

func zoneDescription(rec record.Record) (string, bool) {
	var target map[string]any
	if items := rec.Items(); len(items) > 0 {
		target = items[0]
	} else if list, ok := rec.Value().([]any); ok && len(list) > 0 {
		target, _ = list[0].(map[string]any)
	} else {
		target, _ = rec.Value().(map[string]any)
	}
	desc, ok := target[ZoneDescriptionField].(string)
	return desc, ok && desc != ""
}

// describeZone 按下标取出生长区描述。
func describeZone(rec record.Record, zoneID int) (string, bool) {
	list, ok := rec.Value().([]any)
	if !ok || zoneID < 0 || zoneID >= len(list) {
		return "", false
	}
	zone, _ := list[zoneID].(map[string]any)
	desc, ok := zone["description"].(string)
	return desc, ok && desc != ""
}
