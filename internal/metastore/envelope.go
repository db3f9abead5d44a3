package metastore

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/helseflora/floracache/internal/record"
)

// Envelope 是每个缓存键持久化的整体单元，写入后时间戳不再变化。
type Envelope struct {
	Timestamp time.Time
	Kind      record.Kind
	// Images 记录提交时被拆出图片的条目 id；nil 表示旧格式信封，未记录。
	Images  []string
	Payload json.RawMessage
}

// wireEnvelope 保持与浏览器端 localStorage 相同的字段名，时间戳为 Unix 毫秒。
type wireEnvelope struct {
	TimeStamp *int64          `json:"timeStamp"`
	Kind      record.Kind     `json:"kind,omitempty"`
	Images    *[]string       `json:"images,omitempty"`
	Data      json.RawMessage `json:"data"`
}

var errMalformedEnvelope = errors.New("malformed envelope")

// Age 返回 now 与提交时间的差值。
func (e Envelope) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// MarshalJSON 编码为 {timeStamp, kind, images, data}；空的 Images 仍写出 []。
func (e Envelope) MarshalJSON() ([]byte, error) {
	ts := e.Timestamp.UnixMilli()
	data := e.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	wire := wireEnvelope{TimeStamp: &ts, Kind: e.Kind, Data: data}
	if e.Images != nil {
		images := e.Images
		wire.Images = &images
	}
	return json.Marshal(wire)
}

// UnmarshalJSON 要求 timeStamp 与 data 均存在，否则视为损坏。
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if wire.TimeStamp == nil || len(wire.Data) == 0 {
		return errMalformedEnvelope
	}
	e.Timestamp = time.UnixMilli(*wire.TimeStamp)
	e.Kind = wire.Kind
	e.Images = nil
	if wire.Images != nil {
		e.Images = append([]string{}, (*wire.Images)...)
	}
	e.Payload = wire.Data
	return nil
}
