package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/helseflora/floracache/internal/blobstore"
	"github.com/helseflora/floracache/internal/codec"
	"github.com/helseflora/floracache/internal/logging"
	"github.com/helseflora/floracache/internal/metastore"
	"github.com/helseflora/floracache/internal/record"
)

const defaultConcurrency = 8

var (
	// ErrKeyRequired 表示调用方传入了空缓存键。
	ErrKeyRequired = errors.New("cache key required")
	// ErrNotCollection 表示向非数组记录追加条目。
	ErrNotCollection = errors.New("cached payload is not a collection")
	// ErrImageField 表示试图通过 Enrich 写入图片字段。
	ErrImageField = errors.New("image field cannot be patched")
)

// Options 汇总 Coordinator 的依赖；Namespace 与 Metadata 为必填。
type Options struct {
	Namespace string
	Metadata  metastore.Backend
	// Blobs 为 nil 时图片一律按缺失处理。
	Blobs       blobstore.Backend
	Logger      *logrus.Logger
	Observer    Observer
	Schema      record.Schema
	Policy      TTLPolicy
	Concurrency int
	Now         func() time.Time
}

// Coordinator 编排元数据存储与图片存储，对外只暴露保存/读取/淘汰等少量操作。
type Coordinator struct {
	meta        *metastore.Store
	blobs       *blobstore.Store
	logger      *logrus.Logger
	observer    Observer
	schema      record.Schema
	policy      TTLPolicy
	concurrency int
	now         func() time.Time
}

// New 校验依赖并构建 Coordinator，缺少命名空间属于编程错误，直接返回错误。
func New(opts Options) (*Coordinator, error) {
	if strings.TrimSpace(opts.Namespace) == "" {
		return nil, errors.New("cache namespace is required")
	}
	if opts.Metadata == nil {
		return nil, errors.New("metadata backend is required")
	}
	meta, err := metastore.NewStore(opts.Metadata, opts.Namespace)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	var observer Observer = nopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}
	schema := opts.Schema
	if schema.ImageField == "" {
		schema.ImageField = record.DefaultSchema.ImageField
	}
	if schema.MarkerField == "" {
		schema.MarkerField = record.DefaultSchema.MarkerField
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Coordinator{
		meta:        meta,
		logger:      logger,
		observer:    observer,
		schema:      schema,
		policy:      opts.Policy.normalized(),
		concurrency: concurrency,
		now:         now,
	}
	c.blobs = blobstore.NewStore(opts.Blobs, logger, c.blobFailed)
	return c, nil
}

// Schema 返回当前使用的字段约定，上游解码时应使用同一份 Schema。
func (c *Coordinator) Schema() record.Schema {
	return c.schema
}

// Policy 返回生效的 TTL 策略。
func (c *Coordinator) Policy() TTLPolicy {
	return c.policy
}

// Save 复制 rec、拆出图片并提交信封。存储失败只记录日志，不返回错误；
// 仅在键为空或记录无法复制时返回错误。
func (c *Coordinator) Save(ctx context.Context, key string, rec record.Record) error {
	if strings.TrimSpace(key) == "" {
		return ErrKeyRequired
	}
	clone, err := rec.Clone()
	if err != nil {
		return err
	}
	clone.NormalizeLogin()
	clone = c.schema.Classified(clone)

	env := metastore.Envelope{Timestamp: c.now(), Kind: clone.Kind()}
	if env.Kind != record.KindOpaque {
		env.Images = c.extract(ctx, key, clone.Items())
	}
	c.commit(ctx, key, env, clone)
	return nil
}

// Load 返回仍在有效期内的记录并回填图片；缺失、损坏或过期时返回 false。
// 过期或损坏的信封会在本次读取时被删除。
func (c *Coordinator) Load(ctx context.Context, key string) (record.Record, bool) {
	rec, env, ok := c.lookup(ctx, key)
	if !ok {
		return record.Record{}, false
	}
	c.rehydrate(ctx, key, rec, c.imageIDs(env, rec))
	c.observer.Observe(Event{Type: EventHit, Key: key})
	c.logger.WithFields(logging.CacheFields(key, string(rec.Kind()), true)).Debug("cache_hit")
	return rec, true
}

// Evict 幂等删除信封，不清理图片存储。
func (c *Coordinator) Evict(ctx context.Context, key string) {
	if err := c.meta.Delete(ctx, key); err != nil {
		c.metadataFailed("delete", key, err)
		return
	}
	c.observer.Observe(Event{Type: EventEvict, Key: key})
}

// Peek 返回原始信封，不做 TTL 判断也不回填图片。
func (c *Coordinator) Peek(ctx context.Context, key string) (metastore.Envelope, bool) {
	env, err := c.meta.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, metastore.ErrNotFound) {
			c.metadataFailed("get", key, err)
		}
		return metastore.Envelope{}, false
	}
	return env, true
}

// AppendItem 把 item 追加到 key 对应的集合（购物车）；不存在时新建信封。
// 已有信封的时间戳保持不变。
func (c *Coordinator) AppendItem(ctx context.Context, key string, item record.Item) error {
	if strings.TrimSpace(key) == "" {
		return ErrKeyRequired
	}
	copied, err := c.schema.FromValue(item)
	if err != nil {
		return err
	}
	clonedItem, ok := copied.Value().(map[string]any)
	if !ok {
		return fmt.Errorf("append item: expected object, got %T", copied.Value())
	}

	env := metastore.Envelope{Timestamp: c.now(), Images: []string{}}
	list := record.Record{}
	if existing, ok := c.Peek(ctx, key); ok {
		restored, err := c.schema.Restore(existing.Payload, existing.Kind)
		if err != nil {
			c.corrupt(ctx, key, err)
		} else {
			env = existing
			env.Images = c.imageIDs(existing, restored)
			list = restored
		}
	}

	hasImage := record.HasField(clonedItem, c.schema.ImageField)
	if hasImage {
		env.Images = append(env.Images, c.extract(ctx, key, []record.Item{clonedItem})...)
	}
	wasCollection := list.Kind() == record.KindCollection
	if err := list.Append(clonedItem); err != nil {
		return fmt.Errorf("%w: %s", ErrNotCollection, key)
	}
	env.Kind = record.KindOpaque
	if hasImage || wasCollection {
		env.Kind = record.KindCollection
	}
	c.commit(ctx, key, env, list)
	return nil
}

// Enrich 修改已缓存记录首个条目（或 record 子对象）的单个字段，时间戳不变。
// 信封缺失或已过期时返回 false。
func (c *Coordinator) Enrich(ctx context.Context, key, field string, value any) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrKeyRequired
	}
	if strings.TrimSpace(field) == "" {
		return false, errors.New("field required")
	}
	if field == c.schema.ImageField {
		return false, ErrImageField
	}

	rec, env, ok := c.lookup(ctx, key)
	if !ok {
		return false, nil
	}
	target := firstObject(rec)
	if target == nil {
		return false, nil
	}
	target[field] = value
	c.commit(ctx, key, env, rec)
	return true, nil
}

// User 读取当前登录用户（12 小时有效期）。
func (c *Coordinator) User(ctx context.Context) (record.Record, bool) {
	return c.Load(ctx, c.policy.UserKey)
}

// Logout 删除用户缓存，返回此前是否存在。
func (c *Coordinator) Logout(ctx context.Context) bool {
	if _, ok := c.Peek(ctx, c.policy.UserKey); !ok {
		c.logger.WithFields(logrus.Fields{"action": "logout"}).Info("user_absent")
		return false
	}
	c.Evict(ctx, c.policy.UserKey)
	c.logger.WithFields(logrus.Fields{"action": "logout"}).Info("user_removed")
	return true
}

// lookup 读取信封、执行 TTL 判定并还原记录（不回填图片）。
func (c *Coordinator) lookup(ctx context.Context, key string) (record.Record, metastore.Envelope, bool) {
	env, err := c.meta.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, metastore.ErrNotFound):
		c.observer.Observe(Event{Type: EventMiss, Key: key})
		return record.Record{}, metastore.Envelope{}, false
	case errors.Is(err, metastore.ErrCorrupt):
		c.corrupt(ctx, key, err)
		return record.Record{}, metastore.Envelope{}, false
	default:
		c.metadataFailed("get", key, err)
		return record.Record{}, metastore.Envelope{}, false
	}

	if c.policy.Expired(key, env.Timestamp, c.now()) {
		c.logger.WithFields(logging.CacheFields(key, string(env.Kind), false)).
			WithField("age", env.Age(c.now()).String()).
			Debug("cache_expired")
		if err := c.meta.Delete(ctx, key); err != nil {
			c.metadataFailed("delete", key, err)
		}
		c.observer.Observe(Event{Type: EventExpired, Key: key})
		return record.Record{}, metastore.Envelope{}, false
	}

	rec, err := c.schema.Restore(env.Payload, env.Kind)
	if err != nil {
		c.corrupt(ctx, key, err)
		return record.Record{}, metastore.Envelope{}, false
	}
	return rec, env, true
}

// extract 把条目中的 data URI 图片解码写入图片存储，并从条目中删除图片字段，
// 返回被删除图片字段的条目 id（含写入失败的条目）。
// 条目的修改都在当前 goroutine 完成，并发任务只处理已复制出的字符串。
func (c *Coordinator) extract(ctx context.Context, key string, items []record.Item) []string {
	stripped := []string{}
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for _, item := range items {
		raw, present := item[c.schema.ImageField]
		if !present {
			continue
		}
		id, ok := record.ItemID(item)
		if raw == nil {
			delete(item, c.schema.ImageField)
			if ok {
				stripped = append(stripped, id)
			}
			continue
		}
		if !ok {
			c.skipImage(key, "", "missing id")
			continue
		}
		dataURI, ok := raw.(string)
		if !ok {
			c.skipImage(key, id, fmt.Sprintf("image is %T", raw))
			continue
		}
		mime, ok := codec.ExtractMime(dataURI)
		if !ok {
			c.skipImage(key, id, "not a data uri")
			continue
		}
		delete(item, c.schema.ImageField)
		stripped = append(stripped, id)

		g.Go(func() error {
			data, err := codec.Decode(dataURI, mime)
			if err != nil {
				c.observer.Observe(Event{Type: EventImageCorrupt, Key: key, ItemID: id, Err: err})
				c.logger.WithError(err).
					WithFields(logrus.Fields{"key": key, "item_id": id, "mime": mime}).
					Warn("image_decode_failed")
				return nil
			}
			if c.blobs.Put(ctx, id, blobstore.Blob{MIME: mime, Data: data}) {
				c.observer.Observe(Event{Type: EventImageExtracted, Key: key, ItemID: id})
			}
			return nil
		})
	}
	_ = g.Wait()
	return stripped
}

// imageIDs 返回需要回填图片的条目 id。旧格式信封没有记录 id 时，
// 集合只取带标记字段的条目，单条记录取其 id。
func (c *Coordinator) imageIDs(env metastore.Envelope, rec record.Record) []string {
	if env.Images != nil {
		return env.Images
	}
	ids := []string{}
	for _, item := range rec.Items() {
		if record.HasField(item, c.schema.ImageField) {
			continue
		}
		if rec.Kind() == record.KindCollection && !record.HasField(item, c.schema.MarkerField) {
			continue
		}
		if id, ok := record.ItemID(item); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// rehydrate 并发读取 ids 中条目的图片并等待全部完成；单个失败只把该条目的图片置为 null。
func (c *Coordinator) rehydrate(ctx context.Context, key string, rec record.Record, ids []string) {
	items := rec.Items()
	if len(items) == 0 || len(ids) == 0 {
		return
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	type result struct {
		item  record.Item
		value any
	}
	results := make([]result, len(items))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, item := range items {
		if record.HasField(item, c.schema.ImageField) {
			// 写入时未能拆分的图片原样保留。
			continue
		}
		id, ok := record.ItemID(item)
		if !ok {
			continue
		}
		if _, ok := wanted[id]; !ok {
			continue
		}
		results[i].item = item
		g.Go(func() error {
			blob, err := c.blobs.Get(ctx, id)
			if err != nil {
				c.observer.Observe(Event{Type: EventBlobGetFailed, Key: key, ItemID: id, Err: err})
				return nil
			}
			results[i].value = codec.Encode(blob.Data, blob.MIME)
			c.observer.Observe(Event{Type: EventImageRestored, Key: key, ItemID: id})
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.item != nil {
			r.item[c.schema.ImageField] = r.value
		}
	}
}

func (c *Coordinator) commit(ctx context.Context, key string, env metastore.Envelope, rec record.Record) {
	payload, err := json.Marshal(rec.Value())
	if err != nil {
		c.metadataFailed("encode", key, err)
		return
	}
	env.Payload = payload
	if env.Kind == "" {
		env.Kind = rec.Kind()
	}
	if err := c.meta.Put(ctx, key, env); err != nil {
		c.metadataFailed("put", key, err)
		return
	}
	c.observer.Observe(Event{Type: EventSave, Key: key})
	c.logger.WithFields(logging.CacheFields(key, string(env.Kind), false)).Debug("cache_saved")
}

func (c *Coordinator) corrupt(ctx context.Context, key string, err error) {
	c.logger.WithError(err).WithFields(logrus.Fields{"key": key}).Warn("cache_entry_corrupt")
	c.observer.Observe(Event{Type: EventCorrupt, Key: key, Err: err})
	if delErr := c.meta.Delete(ctx, key); delErr != nil {
		c.metadataFailed("delete", key, delErr)
	}
}

func (c *Coordinator) metadataFailed(op, key string, err error) {
	c.logger.WithError(err).WithFields(logrus.Fields{"key": key, "op": op}).Warn("metadata_" + op + "_failed")
	c.observer.Observe(Event{Type: EventMetadataError, Key: key, Err: err})
}

func (c *Coordinator) blobFailed(op, id string, err error) {
	if op == "put" {
		c.observer.Observe(Event{Type: EventBlobPutFailed, ItemID: id, Err: err})
	}
}

func (c *Coordinator) skipImage(key, id, reason string) {
	c.logger.WithFields(logrus.Fields{"key": key, "item_id": id, "reason": reason}).Warn("image_skipped")
	c.observer.Observe(Event{Type: EventImageSkipped, Key: key, ItemID: id})
}

// firstObject 返回可被 Enrich 修改的对象：集合首个条目、record 子对象或对象本身。
func firstObject(rec record.Record) map[string]any {
	if items := rec.Items(); len(items) > 0 {
		return items[0]
	}
	switch v := rec.Value().(type) {
	case []any:
		if len(v) > 0 {
			obj, _ := v[0].(map[string]any)
			return obj
		}
	case map[string]any:
		return v
	}
	return nil
}
