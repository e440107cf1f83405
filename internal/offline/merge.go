package offline

import (
	"time"

	"github.com/navipesca/weighsync/internal/weighing"
)

type draftResolution struct {
	drafts        []weighing.Record
	stored        weighing.Record
	merged        bool
	foldedLocalID string
}

// resolveDraftUpsert applies the single-draft-per-vessel rule. An incoming record whose
// vessel already has a draft under another local id overwrites that draft in place,
// inheriting its local id and creation time; any copy stored under the incoming id is dropped.
func resolveDraftUpsert(existing []weighing.Record, incoming weighing.Record, now time.Time) draftResolution {
	if incoming.VesselID != nil {
		for index, draft := range existing {
			if draft.VesselID == nil || *draft.VesselID != *incoming.VesselID || draft.LocalID == incoming.LocalID {
				continue
			}
			stored := incoming
			stored.LocalID = draft.LocalID
			stored.CreatedAt = draft.CreatedAt
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = now
			}
			stored.UpdatedAt = now

			updated := make([]weighing.Record, 0, len(existing))
			for otherIndex, other := range existing {
				switch {
				case otherIndex == index:
					updated = append(updated, stored)
				case other.LocalID == incoming.LocalID:
					// stale copy of the incoming session
				default:
					updated = append(updated, other)
				}
			}
			return draftResolution{drafts: updated, stored: stored, merged: true, foldedLocalID: incoming.LocalID}
		}
	}

	updated := make([]weighing.Record, len(existing), len(existing)+1)
	copy(updated, existing)
	for index, draft := range existing {
		if draft.LocalID != incoming.LocalID {
			continue
		}
		stored := incoming
		stored.CreatedAt = draft.CreatedAt
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		updated[index] = stored
		return draftResolution{drafts: updated, stored: stored}
	}

	stored := incoming
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return draftResolution{drafts: append(updated, stored), stored: stored}
}
