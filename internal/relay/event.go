// Package relay bridges the physical RFID reader and the browser clients of the
// card-issuance UI: it fans reader events out to every connected observer and
// correlates a single in-flight write-to-card request with the reader's
// acknowledgment.
package relay

import (
	"encoding/json"
	"time"
)

// Имена событий — совпадают 1:1 с тем, что шлют прошивка ридера и фронтенд.
const (
	EventReaderStatus = "nfc-reader-status"
	EventGetStatus    = "get-nfc-status"
	EventSwipe        = "nfc-swipe"
	EventSwipeEnd     = "nfc-swipe-end"
	EventWriteToCard  = "write-to-card"
	EventWriteSuccess = "card-write-success"
	EventWriteFailed  = "card-write-failed"
)

// Envelope — рамка каждого сообщения на сокете: {"event": ..., "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ReaderStatus — последнее известное состояние единственного ридера.
type ReaderStatus struct {
	Status    string    `json:"status"` // connected | disconnected | error (не валидируется)
	Reader    *string   `json:"reader"`
	Timestamp time.Time `json:"timestamp"`
	Error     *string   `json:"error"`
}

// StatusPatch — частичное обновление статуса; nil-поле = не трогать.
type StatusPatch struct {
	Status *string `json:"status"`
	Reader *string `json:"reader"`
	Error  *string `json:"error"`
}

// WriteError — полезная нагрузка card-write-failed, синтезированного самим relay
// (занятый слот, таймаут). Ошибки от ридера проходят как есть.
type WriteError struct {
	Error string `json:"error"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		env.Data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env.Data = b
	}
	return json.Marshal(env)
}
