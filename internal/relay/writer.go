package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"cardlink/internal/logs"

	"github.com/google/uuid"
)

// ErrWriteInProgress — политика при коллизии: второй write-to-card отклоняется
// сразу, слот не перехватывается (решение зафиксировано в DESIGN.md).
var ErrWriteInProgress = errors.New("write already in progress")

// readerForwarder — то, что coordinator'у нужно от hub'а.
type readerForwarder interface {
	ForwardToReader(event string, data any)
}

// outcomeSink — то, что coordinator'у нужно от клиента-инициатора.
type outcomeSink interface {
	ID() string
	deliver(event string, data any) bool
}

type activeWrite struct {
	id       string
	origin   outcomeSink
	timer    *time.Timer
	issuedAt time.Time
}

// WriteCoordinator — один pending WriteRequest на процесс.
// Состояния: pending -> success | failure | timedOut, все терминальные.
// Исход доставляется ТОЛЬКО инициатору, никогда broadcast'ом.
type WriteCoordinator struct {
	mu      sync.Mutex
	forward readerForwarder
	timeout time.Duration
	active  *activeWrite
}

func newWriteCoordinator(f readerForwarder, timeout time.Duration) *WriteCoordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WriteCoordinator{forward: f, timeout: timeout}
}

// Submit — занимает слот, навешивает request_id и пересылает инструкцию
// reader-подключениям. Если ридера нет — инструкция уйдёт в пустоту и
// запрос завершится по таймауту (штатная деградация).
func (wc *WriteCoordinator) Submit(origin outcomeSink, raw json.RawMessage) error {
	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errors.New("malformed write payload")
		}
	}

	wc.mu.Lock()
	if wc.active != nil {
		wc.mu.Unlock()
		return ErrWriteInProgress
	}

	id := uuid.NewString()
	payload["request_id"] = id
	aw := &activeWrite{id: id, origin: origin, issuedAt: time.Now()}
	aw.timer = time.AfterFunc(wc.timeout, func() { wc.expire(id) })
	wc.active = aw
	wc.mu.Unlock()

	logs.Logger.Infof("relay: write %s submitted by %s", id, origin.ID())
	wc.forward.ForwardToReader(EventWriteToCard, payload)
	return nil
}

// Resolve — пришёл ack от ридера. request_id в payload'е не обязателен
// (прошивки, не возвращающие его, резолвят активный слот); чужой id — игнор.
func (wc *WriteCoordinator) Resolve(success bool, raw json.RawMessage) {
	var corr struct {
		RequestID string `json:"request_id"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &corr)
	}

	wc.mu.Lock()
	if wc.active == nil {
		wc.mu.Unlock()
		logs.Logger.Debugf("relay: write ack with no pending request")
		return
	}
	if corr.RequestID != "" && corr.RequestID != wc.active.id {
		id := wc.active.id
		wc.mu.Unlock()
		logs.Logger.Warnf("relay: write ack for %s while %s pending, ignored", corr.RequestID, id)
		return
	}
	aw := wc.active
	wc.active = nil
	aw.timer.Stop() // таймер больше не выстрелит вторым исходом
	wc.mu.Unlock()

	event := EventWriteSuccess
	if !success {
		event = EventWriteFailed
	}
	logs.Logger.Infof("relay: write %s resolved: %s (%s)", aw.id, event, time.Since(aw.issuedAt).Round(time.Millisecond))
	aw.origin.deliver(event, raw)
}

// expire — таймаут без ack'а: синтезируем failure инициатору и освобождаем
// слот. Если Resolve успел раньше, id уже не совпадёт и делать нечего.
func (wc *WriteCoordinator) expire(id string) {
	wc.mu.Lock()
	if wc.active == nil || wc.active.id != id {
		wc.mu.Unlock()
		return
	}
	aw := wc.active
	wc.active = nil
	wc.mu.Unlock()

	logs.Logger.Warnf("relay: write %s timed out after %s", id, wc.timeout)
	aw.origin.deliver(EventWriteFailed, WriteError{Error: "card write timed out: no response from reader"})
}

// Busy — есть ли сейчас pending запрос.
func (wc *WriteCoordinator) Busy() bool {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.active != nil
}
