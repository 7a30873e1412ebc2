package nipsa

import (
	"context"
	"fmt"

	"marginalia/api/internal/metrics"
	"marginalia/api/internal/presenter"
)

// Lookup answers whether a full user id is shadow-banned.
type Lookup interface {
	IsFlagged(ctx context.Context, userID string) (bool, error)
}

// BatchLookup is implemented by lookups that can check many users at once.
type BatchLookup interface {
	FlaggedAmong(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// ModerationLookup reports moderator-hidden annotations.
type ModerationLookup interface {
	HiddenFor(ctx context.Context, ids []string) (map[string]bool, error)
	Hidden(ctx context.Context, id string) (bool, error)
}

// Transformer sets nipsa=true on payloads whose author is shadow-banned or
// whose annotation a moderator hid. It never sets nipsa=false. A Transformer
// caches per request and is not safe for concurrent use.
type Transformer struct {
	users      Lookup
	moderation ModerationLookup
	metrics    *metrics.Metrics

	banned map[string]bool
	hidden map[string]bool
}

func NewTransformer(users Lookup, moderation ModerationLookup, m *metrics.Metrics) *Transformer {
	return &Transformer{
		users:      users,
		moderation: moderation,
		metrics:    m,
		banned:     map[string]bool{},
		hidden:     map[string]bool{},
	}
}

// Preload batches the lookups Transform would otherwise issue per payload.
// It never changes the outcome of Transform.
func (t *Transformer) Preload(ctx context.Context, payloads []*presenter.Payload) error {
	if len(payloads) == 0 {
		return nil
	}
	ids := make([]string, 0, len(payloads))
	users := make([]string, 0, len(payloads))
	seenIDs := map[string]struct{}{}
	seenUsers := map[string]struct{}{}
	for _, p := range payloads {
		if _, ok := seenIDs[p.ID]; !ok {
			seenIDs[p.ID] = struct{}{}
			ids = append(ids, p.ID)
		}
		if p.User == "" {
			continue
		}
		if _, ok := seenUsers[p.User]; !ok {
			seenUsers[p.User] = struct{}{}
			users = append(users, p.User)
		}
	}

	hidden, err := t.moderation.HiddenFor(ctx, ids)
	t.metrics.Lookup("moderation", metrics.ModeBatch)
	if err != nil {
		return fmt.Errorf("preload moderation: %w", err)
	}
	for _, id := range ids {
		t.hidden[id] = hidden[id]
	}

	batch, ok := t.users.(BatchLookup)
	if !ok || len(users) == 0 {
		return nil
	}
	banned, err := batch.FlaggedAmong(ctx, users)
	t.metrics.Lookup("nipsa", metrics.ModeBatch)
	if err != nil {
		return fmt.Errorf("preload nipsa: %w", err)
	}
	for _, user := range users {
		t.banned[user] = banned[user]
	}
	return nil
}

// Transform marks p when its author is shadow-banned or it is hidden.
// Running it twice leaves p unchanged.
func (t *Transformer) Transform(ctx context.Context, p *presenter.Payload) error {
	if p.User != "" {
		banned, err := t.isBanned(ctx, p.User)
		if err != nil {
			return err
		}
		if banned {
			p.NIPSA = true
			return nil
		}
	}
	hidden, err := t.isHidden(ctx, p.ID)
	if err != nil {
		return err
	}
	if hidden {
		p.NIPSA = true
	}
	return nil
}

// TransformAll preloads and transforms every payload in place.
func (t *Transformer) TransformAll(ctx context.Context, payloads []*presenter.Payload) error {
	if err := t.Preload(ctx, payloads); err != nil {
		return err
	}
	for _, p := range payloads {
		if err := t.Transform(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transformer) isBanned(ctx context.Context, userID string) (bool, error) {
	if banned, ok := t.banned[userID]; ok {
		return banned, nil
	}
	banned, err := t.users.IsFlagged(ctx, userID)
	t.metrics.Lookup("nipsa", metrics.ModeSingle)
	if err != nil {
		return false, fmt.Errorf("check nipsa for %s: %w", userID, err)
	}
	t.banned[userID] = banned
	return banned, nil
}

func (t *Transformer) isHidden(ctx context.Context, id string) (bool, error) {
	if hidden, ok := t.hidden[id]; ok {
		return hidden, nil
	}
	hidden, err := t.moderation.Hidden(ctx, id)
	t.metrics.Lookup("moderation", metrics.ModeSingle)
	if err != nil {
		return false, fmt.Errorf("check moderation for %s: %w", id, err)
	}
	t.hidden[id] = hidden
	return hidden, nil
}
