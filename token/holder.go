// Package token carries the bearer credential shared between the auth
// service, the HTTP transport and the realtime channel. Only the auth
// service (and the transport's refresh path) write the token; everything
// else reads it through the Holder.
package token

import "sync"

// Holder is the single shared read surface for the current bearer token.
type Holder struct {
	lock  sync.RWMutex
	token string
}

func NewHolder() *Holder {
	return &Holder{}
}

// Token returns the current bearer token, or "" when anonymous.
func (h *Holder) Token() string {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.token
}

// Set replaces the current token.
func (h *Holder) Set(token string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.token = token
}

// Clear removes the current token.
func (h *Holder) Clear() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.token = ""
}
