package reconciler

import (
	"bytes"
	"strings"

	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/icon"
	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/provider"
	"github.com/blackwell-systems/appregistry/internal/store"
)

// liveEntry is a provider entry with its title settled and icon decoded.
type liveEntry struct {
	key   identity.Key
	title string
	icon  []byte
}

// prepare normalises what the provider reported for scope ("" for every
// package). The first entry of a repeated identity wins, entries outside the
// scope are dropped, an empty label falls back to the class name and an icon
// that fails to decode is stored as no icon.
func prepare(entries []provider.LiveEntry, scope string, log *zap.Logger) []liveEntry {
	seen := make(map[identity.Key]bool, len(entries))
	live := make([]liveEntry, 0, len(entries))

	for _, e := range entries {
		key := e.Identity
		if err := key.Validate(); err != nil {
			log.Warn("skipping malformed live entry", zap.Error(err))
			continue
		}
		if scope != "" && key.Package != scope {
			log.Warn("skipping live entry outside package", zap.Stringer("identity", key))
			continue
		}
		if seen[key] {
			log.Debug("ignoring duplicate live entry", zap.Stringer("identity", key))
			continue
		}
		seen[key] = true

		title := strings.TrimSpace(e.Title)
		if title == "" {
			title = key.Class
		}

		var data []byte
		if e.Icon != nil {
			decoded, err := icon.Load(e.Icon)
			if err != nil {
				log.Debug("icon decode failed, storing none", zap.Stringer("identity", key), zap.Error(err))
			} else {
				data = decoded
			}
		}

		live = append(live, liveEntry{key: key, title: title, icon: data})
	}
	return live
}

// plan computes the three-way diff between the stored snapshot and the live
// set. Stored records without a live counterpart are removed, live entries
// without a stored record are added, and records present on both sides are
// updated when their title or icon differs. It also returns the snapshot
// indexed by id.
func plan(stored []*store.Record, live []liveEntry) (store.Batch, map[int64]*store.Record) {
	byKey := make(map[identity.Key]*store.Record, len(stored))
	byID := make(map[int64]*store.Record, len(stored))
	for _, rec := range stored {
		byKey[rec.Identity] = rec
		byID[rec.ID] = rec
	}

	var batch store.Batch
	matched := make(map[int64]bool, len(live))

	for _, e := range live {
		rec, ok := byKey[e.key]
		if !ok {
			batch.Added = append(batch.Added, store.NewRecord{Identity: e.key, Title: e.title, Icon: e.icon})
			continue
		}
		matched[rec.ID] = true
		if rec.Title != e.title || !bytes.Equal(rec.Icon, e.icon) {
			batch.Updated = append(batch.Updated, store.Update{ID: rec.ID, Title: e.title, Icon: e.icon})
		}
	}

	for _, rec := range stored {
		if !matched[rec.ID] {
			batch.RemovedIDs = append(batch.RemovedIDs, rec.ID)
		}
	}
	return batch, byID
}
