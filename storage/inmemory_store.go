package storage

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/router"
)

const updateBufferSize = 255

type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	listenMu    sync.Mutex
	updateChans []chan *Update
	closed      bool

	log *zap.Logger
}

func NewInmemoryStore(log *zap.Logger) *InmemoryStore {
	if log == nil {
		log = zap.NewNop()
	}

	return &InmemoryStore{
		values:      []byte(""),
		updateChans: make([]chan *Update, 0),
		log:         log,
	}
}

func (i *InmemoryStore) Close() error {
	i.listenMu.Lock()
	defer i.listenMu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	for _, updateChan := range i.updateChans {
		close(updateChan)
	}
	i.updateChans = nil

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, key string, value interface{}) error {
	i.mu.Lock()
	values, err := sjson.SetBytes(i.values, key, value)
	if err != nil {
		i.mu.Unlock()
		return err
	}
	i.values = values
	raw := []byte(gjson.GetBytes(i.values, key).Raw)
	i.mu.Unlock()

	i.publish(&Update{Key: key, Value: raw})

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := gjson.GetBytes(i.values, key)
	if !result.Exists() {
		return nil, ErrNotFound
	}

	return []byte(result.Raw), nil
}

// Record stores ev as the last value of its event for its sender. It has the shape
// of a router.HandlerFunc so it can be registered as a raw handler.
func (i *InmemoryStore) Record(ev *router.Event) {
	key := EventKey(ev.Header.Sender, ev.Name)

	if err := i.Set(context.Background(), key, NewEventRecord(ev)); err != nil {
		i.log.Warn("Failed to record event",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Device returns every event recorded from addr.
func (i *InmemoryStore) Device(ctx context.Context, addr byte) ([]byte, error) {
	return i.Get(ctx, DeviceKey(addr))
}

// ListenToUpdates returns a channel receiving every change. Updates are dropped for
// listeners that fall behind.
func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.listenMu.Lock()
	defer i.listenMu.Unlock()

	updateChan := make(chan *Update, updateBufferSize)
	if i.closed {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

func (i *InmemoryStore) Restore(values []byte) error {
	if len(values) > 0 && !gjson.ValidBytes(values) {
		return ErrInvalidJSON
	}

	i.mu.Lock()
	i.values = append([]byte(nil), values...)
	i.mu.Unlock()

	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	return append([]byte(nil), i.values...), nil
}

func (i *InmemoryStore) publish(update *Update) {
	i.listenMu.Lock()
	defer i.listenMu.Unlock()

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		default:
			i.log.Debug("Update listener is full, dropped update", zap.String("key", update.Key))
		}
	}
}

var _ Store = (*InmemoryStore)(nil)
