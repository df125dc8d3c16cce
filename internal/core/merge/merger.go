package merge

import (
	"time"

	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/core/similarity"
)

// Merger holds one session's clinical items, bucketed by type, and folds each
// analysis pass into them. Items are matched by stable id first, then by
// similarity against the canonical first-seen key of each cluster, so arrival
// order of near-duplicates cannot split a cluster. Items are never removed
// within a session.
//
// Not safe for concurrent use; each session owns its own Merger.
type Merger struct {
	buckets map[model.ItemType]*bucket
	now     func() time.Time
}

type bucket struct {
	order []string // first-seen insertion order, never re-sorted
	items map[string]*model.MergedItem
	// canonicalKeys pins similarity matching to the key text an item had when
	// first inserted. areSimilar is not transitive, so comparing against the
	// latest merged key could split or join clusters depending on arrival order.
	canonicalKeys map[string]string
}

func NewMerger() *Merger {
	return &Merger{
		buckets: make(map[model.ItemType]*bucket),
		now:     time.Now,
	}
}

func (m *Merger) ensure(t model.ItemType) *bucket {
	b, ok := m.buckets[t]
	if !ok {
		b = &bucket{
			items:         make(map[string]*model.MergedItem),
			canonicalKeys: make(map[string]string),
		}
		m.buckets[t] = b
	}
	return b
}

// MergeItems folds one batch of extracted items into the bucket for t.
// An empty batch is a no-op returning the unchanged collection.
func (m *Merger) MergeItems(items []model.ExtractedItem, t model.ItemType) model.MergeResult {
	b := m.ensure(t)

	if len(items) == 0 {
		return model.MergeResult{
			Items:   b.snapshot(),
			Summary: model.MergeSummary{Total: len(b.order)},
		}
	}

	// Items untouched this pass settle back to stable.
	for _, it := range b.items {
		it.IsNew = false
		it.IsUpdated = false
	}

	added, updated := 0, 0
	now := m.now()

	for _, in := range items {
		if in.Payload == nil || in.Payload.Kind() != t {
			continue
		}

		target := b.match(in.Payload)
		if target != nil {
			target.Payload = target.Payload.Merge(in.Payload)
			if in.Confidence != 0 {
				target.Confidence = in.Confidence
			}
			target.UpdateCount++
			target.LastUpdated = now
			if !target.IsNew {
				if !target.IsUpdated {
					updated++
				}
				target.IsUpdated = true
			}
			continue
		}

		id := similarity.StableID(in.Payload)
		b.items[id] = &model.MergedItem{
			ID:          id,
			Type:        t,
			Payload:     in.Payload,
			Confidence:  in.Confidence,
			IsNew:       true,
			UpdateCount: 1,
			FirstSeen:   now,
			LastUpdated: now,
		}
		b.order = append(b.order, id)
		b.canonicalKeys[id] = similarity.Normalize(in.Payload.KeyText())
		added++
	}

	return model.MergeResult{
		Items:           b.snapshot(),
		HasNewItems:     added > 0,
		HasUpdatedItems: updated > 0,
		Summary: model.MergeSummary{
			Added:   added,
			Updated: updated,
			Total:   len(b.order),
		},
	}
}

func (b *bucket) match(p model.Payload) *model.MergedItem {
	if it, ok := b.items[similarity.StableID(p)]; ok {
		return it
	}
	key := p.KeyText()
	for _, id := range b.order {
		if similarity.AreSimilarText(b.canonicalKeys[id], key) {
			return b.items[id]
		}
	}
	return nil
}

func (b *bucket) snapshot() []*model.MergedItem {
	out := make([]*model.MergedItem, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.items[id])
	}
	return out
}

// Items returns the merged collection for t in first-seen order.
func (m *Merger) Items(t model.ItemType) []*model.MergedItem {
	b, ok := m.buckets[t]
	if !ok {
		return nil
	}
	return b.snapshot()
}

// ItemsData projects the current state down to raw payloads, preserving
// first-seen order so repeated renders do not reorder items.
func (m *Merger) ItemsData(t model.ItemType) []model.Payload {
	b, ok := m.buckets[t]
	if !ok {
		return nil
	}
	out := make([]model.Payload, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.items[id].Payload)
	}
	return out
}

// Clear resets every type bucket.
func (m *Merger) Clear() {
	m.buckets = make(map[model.ItemType]*bucket)
}
