package relay

import (
	"encoding/json"
	"sync"
	"time"

	"cardlink/internal/directory"
	"cardlink/internal/logs"
)

// Hub — реестр живых подключений + fan-out.
// Вся разделяемая mutable-state (набор подключений, статус, слот записи)
// принадлежит hub'у и его coordinator'у и защищена их мьютексами.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	status *StatusStore
	writes *WriteCoordinator
	lookup directory.Lookup // nil = без обогащения swipe-событий
}

func NewHub(lookup directory.Lookup, writeTimeout time.Duration) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		status:  NewStatusStore(),
		lookup:  lookup,
	}
	h.writes = newWriteCoordinator(h, writeTimeout)
	return h
}

// Status — REST-представление текущего статуса (то же значение, что get-nfc-status).
func (h *Hub) Status() ReaderStatus { return h.status.Get() }

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logs.Logger.Infof("relay: %s connected as %s (%d active)", c.id, c.role, n)
}

// Unregister — убирает подключение из реестра. Висящий WriteRequest этого
// клиента НЕ отменяется: состояние живёт в coordinator'е, доставка исхода
// отключившемуся станет no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.closeSend()
		logs.Logger.Infof("relay: %s disconnected (%d active)", c.id, n)
	}
}

// Broadcast — best-effort доставка всем активным подключениям.
// Подтверждений и ретраев нет; порядок гарантирован только per-connection.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		logs.Logger.Errorf("relay: encode %s: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

// ForwardToReader — доставка только reader-подключениям (инструкция записи).
func (h *Hub) ForwardToReader(event string, data any) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		logs.Logger.Errorf("relay: encode %s: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.role == RoleReader {
			c.enqueue(msg)
		}
	}
}

// Dispatch — обработка одного входящего события. Вызывается из readPump'ов;
// обработчики короткие, общий state защищён мьютексами store/coordinator.
func (h *Hub) Dispatch(c *Client, env Envelope) {
	switch env.Event {
	case EventReaderStatus:
		var p StatusPatch
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				logs.Logger.Warnf("relay: bad status patch from %s: %v", c.id, err)
				return
			}
		}
		full := h.status.Update(p)
		h.Broadcast(EventReaderStatus, full)

	case EventGetStatus:
		c.deliver(EventReaderStatus, h.status.Get())

	case EventSwipe:
		h.Broadcast(EventSwipe, h.enrichSwipe(env.Data))

	case EventSwipeEnd:
		// без корреляции с nfc-swipe — что пришло, то и разошлось
		h.Broadcast(EventSwipeEnd, env.Data)

	case EventWriteToCard:
		if err := h.writes.Submit(c, env.Data); err != nil {
			c.deliver(EventWriteFailed, WriteError{Error: err.Error()})
		}

	case EventWriteSuccess, EventWriteFailed:
		// ack принимаем только от reader-подключений
		if c.role != RoleReader {
			logs.Logger.Warnf("relay: write ack from non-reader %s, ignored", c.id)
			return
		}
		h.writes.Resolve(env.Event == EventWriteSuccess, env.Data)

	default:
		logs.Logger.Debugf("relay: unknown event %q from %s", env.Event, c.id)
	}
}

// enrichSwipe — если ридер прислал только UID, подтягиваем студента из
// справочника. Payload проходит как есть, трогаем только отсутствующий data.
func (h *Hub) enrichSwipe(raw json.RawMessage) json.RawMessage {
	if h.lookup == nil || len(raw) == 0 {
		return raw
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return raw
	}
	if v, ok := payload["data"]; ok && v != nil {
		return raw
	}
	uid, _ := payload["uid"].(string)
	if uid == "" {
		return raw
	}

	info, found, err := h.lookup.StudentByCardUID(uid)
	if err != nil {
		logs.Logger.Warnf("relay: directory lookup for %s: %v", uid, err)
		return raw
	}
	if !found {
		return raw
	}

	payload["data"] = info
	enriched, err := json.Marshal(payload)
	if err != nil {
		return raw
	}
	return enriched
}
