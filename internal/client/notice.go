package client

import (
	"sync"
	"time"
)

const DefaultNoticeTTL = 3 * time.Second

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

type Notice struct {
	ID    uint64
	Level NoticeLevel
	Text  string
	At    time.Time
}

// Notices holds transient messages; each one removes itself after ttl.
type Notices struct {
	mu     sync.Mutex
	ttl    time.Duration
	nextID uint64
	items  []Notice

	// OnChange 在新增或自动消失后调用
	OnChange func()
}

func NewNotices(ttl time.Duration) *Notices {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &Notices{ttl: ttl}
}

func (n *Notices) Info(text string)  { n.push(NoticeInfo, text) }
func (n *Notices) Error(text string) { n.push(NoticeError, text) }

func (n *Notices) push(level NoticeLevel, text string) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.items = append(n.items, Notice{ID: id, Level: level, Text: text, At: time.Now()})
	n.mu.Unlock()

	time.AfterFunc(n.ttl, func() { n.dismiss(id) })
	n.notify()
}

func (n *Notices) dismiss(id uint64) {
	n.mu.Lock()
	removed := false
	for i, item := range n.items {
		if item.ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			removed = true
			break
		}
	}
	n.mu.Unlock()
	if removed {
		n.notify()
	}
}

// Active returns the notices that have not expired yet, oldest first.
func (n *Notices) Active() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.items))
	copy(out, n.items)
	return out
}

func (n *Notices) notify() {
	if n.OnChange != nil {
		n.OnChange()
	}
}
