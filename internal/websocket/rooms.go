package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Rooms держит по одному хабу на комнату, лениво их запускает
// и забывает хаб, когда из комнаты уходит последнее соединение.
type Rooms struct {
	mu       sync.Mutex
	hubs     map[string]*Hub
	handler  FrameHandler
	sessions SessionStore
	log      *zap.Logger
}

func NewRooms(handler FrameHandler, sessions SessionStore, log *zap.Logger) *Rooms {
	return &Rooms{
		hubs:     make(map[string]*Hub),
		handler:  handler,
		sessions: sessions,
		log:      log.Named("hub"),
	}
}

func (r *Rooms) Get(roomID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hubs[roomID]; ok {
		return h
	}
	h := NewHub(roomID, r.handler, r.sessions, r.log)
	h.onIdle = r.release
	r.hubs[roomID] = h
	go h.Run()
	return h
}

// Len число запущенных хабов
func (r *Rooms) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hubs)
}

// release снимает хаб с учета, если он все еще зарегистрирован за комнатой.
// Вызывается из цикла хаба; после этого Get создаст новый.
func (r *Rooms) release(h *Hub) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hubs[h.RoomID] != h {
		return false
	}
	delete(r.hubs, h.RoomID)
	return true
}

func (r *Rooms) Sessions() SessionStore {
	return r.sessions
}

// Stop останавливает все хабы.
func (r *Rooms) Stop() {
	r.mu.Lock()
	hubs := make([]*Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	r.hubs = make(map[string]*Hub)
	r.mu.Unlock()

	for _, h := range hubs {
		h.Stop()
	}
}
