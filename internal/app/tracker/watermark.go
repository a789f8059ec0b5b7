package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/kvstore"
)

// Watermark marks the point up to which a role has acknowledged its work.
type Watermark struct {
	LastSeenCount int       `json:"last_seen_count"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

func KeyLastSeenCount(role contracts.Role) string {
	return "notif_last_seen_count_" + string(role)
}

func KeyLastSeenAt(role contracts.Role) string {
	return "notif_last_seen_at_" + string(role)
}

// LoadWatermark returns ok=false when either key is missing or unreadable.
func LoadWatermark(ctx context.Context, store kvstore.Store, role contracts.Role) (Watermark, bool, error) {
	rawCount, ok, err := store.Get(ctx, KeyLastSeenCount(role))
	if err != nil || !ok {
		return Watermark{}, false, err
	}
	rawAt, ok, err := store.Get(ctx, KeyLastSeenAt(role))
	if err != nil || !ok {
		return Watermark{}, false, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(rawCount))
	if err != nil {
		return Watermark{}, false, fmt.Errorf("parsing %s: %w", KeyLastSeenCount(role), err)
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(rawAt))
	if err != nil {
		return Watermark{}, false, fmt.Errorf("parsing %s: %w", KeyLastSeenAt(role), err)
	}
	return Watermark{LastSeenCount: count, LastSeenAt: at}, true, nil
}

func SaveWatermark(ctx context.Context, store kvstore.Store, role contracts.Role, wm Watermark) error {
	if err := store.Set(ctx, KeyLastSeenCount(role), strconv.Itoa(wm.LastSeenCount)); err != nil {
		return err
	}
	return store.Set(ctx, KeyLastSeenAt(role), wm.LastSeenAt.UTC().Format(time.RFC3339Nano))
}
