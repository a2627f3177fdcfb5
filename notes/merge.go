package notes

import "homenotes/models"

// MergeNotes combines the cached notes with the remote profile's notes.
//
// Remote order and remote fields win, except that a note's categories come from the
// local copy whenever that copy has any. Notes only present locally are appended in
// their local order. Merging a result again with the same local list yields the same
// result.
func MergeNotes(local, remote []models.Note) []models.Note {
	byID := make(map[string]models.Note, len(local))
	for _, n := range local {
		byID[n.ID] = n
	}

	merged := make([]models.Note, 0, len(remote)+len(local))
	seen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		m := r.Clone()
		if l, ok := byID[r.ID]; ok && len(l.Categories) > 0 {
			m.Categories = append([]string{}, l.Categories...)
		}
		m.Normalize()
		merged = append(merged, m)
	}

	for _, l := range local {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		m := l.Clone()
		m.Normalize()
		merged = append(merged, m)
	}
	return merged
}

// upsert replaces the note with the same id or prepends it.
func upsert(list []models.Note, n models.Note) []models.Note {
	for i := range list {
		if list[i].ID == n.ID {
			list[i] = n
			return list
		}
	}
	return append([]models.Note{n}, list...)
}
