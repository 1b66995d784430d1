package auth

import (
	"context"
	"sync"
)

type userSlotKey struct{}

type userSlot struct {
	mu   sync.Mutex
	name string
}

// WithUserSlot lets handlers deeper in the chain report the
// authenticated user back to the access log middleware.
func WithUserSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, userSlotKey{}, &userSlot{})
}

func SetUser(ctx context.Context, name string) {
	slot, ok := ctx.Value(userSlotKey{}).(*userSlot)
	if !ok {
		return
	}
	slot.mu.Lock()
	slot.name = name
	slot.mu.Unlock()
}

func UserFrom(ctx context.Context) string {
	slot, ok := ctx.Value(userSlotKey{}).(*userSlot)
	if !ok {
		return ""
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.name
}
