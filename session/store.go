package session

import (
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// Store 会话的内存存储。只活在进程里，重启即丢，
// 过期回收由外部定时调 Sweep
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Create 新建会话并登记
func (st *Store) Create(name string, img image.Image, raw []byte, rawFormat string) *Session {
	s := newSession(ksuid.New().String(), name, img, raw, rawFormat)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	slog.Info("session created", "id", s.ID, "name", name,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return s
}

// Get 按 ID 取会话，命中时刷新活跃时间
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()

	if ok {
		s.Touch()
	}
	return s, ok
}

// Delete 删除会话
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len 当前会话数
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep 回收闲置超过 ttl 的会话，返回回收数量
func (st *Store) Sweep(ttl time.Duration) int {
	deadline := time.Now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.LastSeen().Before(deadline) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
