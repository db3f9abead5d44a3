// Package record models the JSON payloads returned by the shop API as a small
// tagged union. The shape is decided once, when the payload is decoded, so
// the cache coordinator can switch on Kind instead of probing maps.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind 标识记录的结构变体。
type Kind string

const (
	// KindOpaque 不含图片字段，原样缓存。
	KindOpaque Kind = "opaque"
	// KindCollection 是带 id 的条目数组，条目可能携带图片。
	KindCollection Kind = "collection"
	// KindWrapped 是包含 record 子对象的单条记录（登录/用户数据）。
	KindWrapped Kind = "wrapped"
)

const (
	IDField      = "id"
	WrapperField = "record"
	LoginField   = "logindata"
	LoginIDField = "userid"
)

// Item 是集合中的单个条目或 Wrapped 记录内的 record 对象。
type Item = map[string]any

// Schema 描述图片字段与“必带缩略图”的标记字段名。
type Schema struct {
	ImageField  string
	MarkerField string
}

// DefaultSchema 对应商店 API：图片在 thumb 字段，植物条目带 discount 字段。
var DefaultSchema = Schema{ImageField: "thumb", MarkerField: "discount"}

// Record 持有解码后的 JSON 树及其结构变体。
type Record struct {
	kind  Kind
	value any
}

// ErrEmpty 表示输入为空，无法构成记录。
var ErrEmpty = errors.New("empty record payload")

// Parse 解码 JSON 并在写入语义下判定结构（首个条目是否带图片字段）。
func (s Schema) Parse(data []byte) (Record, error) {
	value, err := decode(data)
	if err != nil {
		return Record{}, err
	}
	return Record{kind: s.Classify(value), value: value}, nil
}

// FromValue 通过序列化往返复制任意 JSON 形态的值并判定结构。
func (s Schema) FromValue(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("marshal record: %w", err)
	}
	return s.Parse(data)
}

// Restore 用于读取已缓存的 payload：kind 为空时按标记字段重新判定。
func (s Schema) Restore(data []byte, kind Kind) (Record, error) {
	value, err := decode(data)
	if err != nil {
		return Record{}, err
	}
	switch kind {
	case KindCollection, KindWrapped, KindOpaque:
	default:
		kind = s.ClassifyStored(value)
	}
	return Record{kind: kind, value: value}, nil
}

// Classify 按写入语义判定结构：首个元素带图片字段的数组为集合，
// logindata 或 record 子对象带图片字段的对象为 Wrapped，其余为 Opaque。
func (s Schema) Classify(value any) Kind {
	if list, ok := value.([]any); ok {
		if len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok && hasField(first, s.ImageField) {
				return KindCollection
			}
		}
		return KindOpaque
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return KindOpaque
	}
	for _, field := range []string{LoginField, WrapperField} {
		if nested, ok := obj[field].(map[string]any); ok && hasField(nested, s.ImageField) {
			return KindWrapped
		}
	}
	return KindOpaque
}

// Classified 按当前内容重新判定 r 的结构，不复制底层数据。
func (s Schema) Classified(r Record) Record {
	return Record{kind: s.Classify(r.value), value: r.value}
}

// ClassifyStored 判定图片已剥离的 payload：集合依靠首个条目的标记字段。
func (s Schema) ClassifyStored(value any) Kind {
	if list, ok := value.([]any); ok {
		if len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok && hasField(first, s.MarkerField) {
				return KindCollection
			}
		}
		return KindOpaque
	}
	if obj, ok := value.(map[string]any); ok {
		if _, ok := obj[WrapperField].(map[string]any); ok {
			return KindWrapped
		}
	}
	return KindOpaque
}

// Kind 返回记录的结构变体。
func (r Record) Kind() Kind {
	if r.kind == "" {
		return KindOpaque
	}
	return r.kind
}

// Value 返回底层 JSON 树，调用方修改会影响记录本身。
func (r Record) Value() any {
	return r.value
}

// IsZero 表示记录未被赋值。
func (r Record) IsZero() bool {
	return r.value == nil && r.kind == ""
}

// Clone 通过 JSON 往返生成结构完全独立的副本。
func (r Record) Clone() (Record, error) {
	data, err := json.Marshal(r.value)
	if err != nil {
		return Record{}, fmt.Errorf("clone record: %w", err)
	}
	value, err := decode(data)
	if err != nil {
		return Record{}, err
	}
	return Record{kind: r.kind, value: value}, nil
}

// NormalizeLogin 把登录响应统一为通用单记录形态：
// logindata 改名为 record，嵌套的 userid 改名为 id。原地修改。
func (r *Record) NormalizeLogin() bool {
	obj, ok := r.value.(map[string]any)
	if !ok {
		return false
	}
	login, ok := obj[LoginField]
	if !ok {
		return false
	}
	delete(obj, LoginField)
	obj[WrapperField] = login
	if nested, ok := login.(map[string]any); ok {
		if uid, ok := nested[LoginIDField]; ok {
			nested[IDField] = uid
			delete(nested, LoginIDField)
		}
	}
	return true
}

// Items 返回需要处理图片的条目：集合的全部对象元素，或 Wrapped 的 record 对象。
func (r Record) Items() []Item {
	switch r.Kind() {
	case KindCollection:
		list, _ := r.value.([]any)
		items := make([]Item, 0, len(list))
		for _, el := range list {
			if item, ok := el.(map[string]any); ok {
				items = append(items, item)
			}
		}
		return items
	case KindWrapped:
		obj, _ := r.value.(map[string]any)
		if nested, ok := obj[WrapperField].(map[string]any); ok {
			return []Item{nested}
		}
	}
	return nil
}

// Append 向集合追加条目；非数组记录返回错误。
func (r *Record) Append(item Item) error {
	if r.value == nil {
		r.value = []any{}
	}
	list, ok := r.value.([]any)
	if !ok {
		return fmt.Errorf("append to %s record", r.Kind())
	}
	r.value = append(list, item)
	r.kind = KindCollection
	return nil
}

// MarshalJSON 输出底层 JSON 树。
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

// HasField 报告条目是否带有 field（值可以为 null）。
func HasField(item Item, field string) bool {
	return hasField(item, field)
}

// ItemID 读取条目的 id 并转为字符串；缺失或为 null 时返回 false。
func ItemID(item Item) (string, bool) {
	switch v := item[IDField].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

func hasField(obj map[string]any, field string) bool {
	if field == "" {
		return false
	}
	_, ok := obj[field]
	return ok
}

func decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return value, nil
}
