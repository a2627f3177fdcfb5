package models

// Presence status values.
const (
	StatusEditing = "editing"
	StatusIdle    = "idle"
)

// PresenceStaleAfterMillis is how old a presence entry may get before it is hidden.
const PresenceStaleAfterMillis int64 = 30_000

// SharedNote is the remote document for a note that has been shared.
// It is authoritative for shared content; the local Note is only a cached copy.
type SharedNote struct {
	ID               string                      `json:"id"`
	Title            string                      `json:"title"`
	Content          string                      `json:"content"`
	Categories       []string                    `json:"categories"`
	Images           []ImageRef                  `json:"images"`
	ListSections     []ListSection               `json:"listSections"`
	VoiceNotes       []VoiceRef                  `json:"voiceNotes"`
	CreatedAt        int64                       `json:"createdAt"`
	UpdatedAt        int64                       `json:"updatedAt"`
	OwnerID          string                      `json:"ownerId"`
	Collaborators    map[string]CollaboratorInfo `json:"collaborators,omitempty"`
	LastEditedBy     string                      `json:"lastEditedBy,omitempty"`
	LastEditedByName string                      `json:"lastEditedByName,omitempty"`
	LastModified     int64                       `json:"lastModified,omitempty"`
	ActiveUsers      map[string]PresenceInfo     `json:"activeUsers,omitempty"`
}

// PresenceInfo marks a user as active in a shared note's editor.
type PresenceInfo struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	LastActive   int64  `json:"lastActive"`
	Status       string `json:"status"`
	CurrentField string `json:"currentField,omitempty"`
}

// IsStale reports whether the entry missed its heartbeats long enough to be ignored.
func (p PresenceInfo) IsStale(now int64) bool {
	return now-p.LastActive > PresenceStaleAfterMillis
}

// SharedNoteFromNote projects a local note onto the shared document shape.
// Presence and edit stamps are left for the caller.
func SharedNoteFromNote(n Note) SharedNote {
	n = n.Clone()
	n.Normalize()
	return SharedNote{
		ID:            n.ID,
		Title:         n.Title,
		Content:       n.Content,
		Categories:    n.Categories,
		Images:        n.Images,
		ListSections:  n.ListSections,
		VoiceNotes:    n.VoiceNotes,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
		OwnerID:       n.OwnerID,
		Collaborators: n.Collaborators,
	}
}

// ApplyTo copies the shared content onto a local note copy, keeping the
// note's own id and lock.
func (s SharedNote) ApplyTo(n *Note) {
	n.Title = s.Title
	n.Content = s.Content
	n.Categories = append([]string{}, s.Categories...)
	n.Images = append([]ImageRef{}, s.Images...)
	n.ListSections = append([]ListSection{}, s.ListSections...)
	n.VoiceNotes = append([]VoiceRef{}, s.VoiceNotes...)
	n.UpdatedAt = s.UpdatedAt
	if s.OwnerID != "" {
		n.OwnerID = s.OwnerID
	}
	if s.Collaborators != nil {
		n.Collaborators = make(map[string]CollaboratorInfo, len(s.Collaborators))
		for k, v := range s.Collaborators {
			n.Collaborators[k] = v
		}
	}
	n.Normalize()
}
