package relay

import (
	"sync"
	"time"
)

// StatusStore — единственное место, где живёт текущий ReaderStatus.
// Одна запись на процесс, merge-on-update, без персистентности.
type StatusStore struct {
	mu  sync.RWMutex
	cur ReaderStatus
}

func NewStatusStore() *StatusStore {
	return &StatusStore{
		cur: ReaderStatus{
			Status:    "disconnected",
			Timestamp: time.Now(),
		},
	}
}

// Update — shallow merge патча поверх текущего значения; timestamp = now.
// Значения enum не валидируются: что прислал ридер, то и храним.
func (s *StatusStore) Update(p StatusPatch) ReaderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status != nil {
		s.cur.Status = *p.Status
	}
	if p.Reader != nil {
		s.cur.Reader = p.Reader
	}
	if p.Error != nil {
		s.cur.Error = p.Error
	}
	s.cur.Timestamp = time.Now()
	return s.cur
}

// Get — текущее значение; до первого Update отдаёт стартовый default.
func (s *StatusStore) Get() ReaderStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}
