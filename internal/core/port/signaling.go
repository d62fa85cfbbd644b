package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// SignalingChannel is a path-addressed ephemeral exchange. Paths are slash
// separated; Remove drops a whole subtree.
type SignalingChannel interface {
	// Write overwrites a single slot.
	Write(ctx context.Context, path string, value []byte) error
	// Append adds an entry under a collection and returns its insertion key.
	Append(ctx context.Context, path string, value []byte) (string, error)
	ReadOnce(ctx context.Context, path string) ([]byte, bool, error)
	// Take reads a slot and removes it in one step, so only one reader gets it.
	Take(ctx context.Context, path string) ([]byte, bool, error)
	// Subscribe emits the current snapshot, then a fresh one whenever path,
	// one of its descendants or one of its ancestors changes.
	Subscribe(ctx context.Context, path string) (Subscription[domain.Snapshot], error)
	Remove(ctx context.Context, path string) error
}
