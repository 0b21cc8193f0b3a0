package assistant

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

// history keeps the last n user/assistant messages of a chat.
type history struct {
	mu       sync.Mutex
	n        int
	messages []*schema.Message
}

func (h *history) snapshot() []*schema.Message {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*schema.Message(nil), h.messages...)
}

func (h *history) append(msgs ...*schema.Message) {
	if h == nil || h.n <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if len(h.messages) > 0 {
			last := h.messages[len(h.messages)-1]
			if last.Role == msg.Role && last.Content == msg.Content {
				continue
			}
		}
		h.messages = append(h.messages, msg)
	}
	if len(h.messages) > h.n {
		h.messages = append([]*schema.Message(nil), h.messages[len(h.messages)-h.n:]...)
	}
}

func (h *history) reset() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}
