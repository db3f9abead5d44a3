package cache

// EventType 标识一次缓存事件。
type EventType string

const (
	EventHit            EventType = "hit"
	EventMiss           EventType = "miss"
	EventExpired        EventType = "expired"
	EventCorrupt        EventType = "corrupt"
	EventEvict          EventType = "evict"
	EventSave           EventType = "save"
	EventMetadataError  EventType = "metadata_error"
	EventBlobPutFailed  EventType = "blob_put_failed"
	EventBlobGetFailed  EventType = "blob_get_failed"
	EventImageSkipped   EventType = "image_skipped"
	EventImageCorrupt   EventType = "image_corrupt"
	EventImageRestored  EventType = "image_restored"
	EventImageExtracted EventType = "image_extracted"
)

// Event 描述一次事件；Err 仅在失败类事件中非空。
type Event struct {
	Type   EventType
	Key    string
	ItemID string
	Err    error
}

// Observer 接收缓存事件，用于指标或审计；实现必须是并发安全的。
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe makes ObserverFunc satisfy Observer.
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// MultiObserver 依次转发给多个 Observer。
type MultiObserver []Observer

func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}
