package models

// Invitation status values.
const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
)

// Invitation asks a user to collaborate on a shared note.
type Invitation struct {
	ID         string `json:"id"`
	To         string `json:"to"`
	From       string `json:"from"`
	FromName   string `json:"fromName,omitempty"`
	SharedID   string `json:"sharedId"`
	NoteTitle  string `json:"noteTitle,omitempty"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
	AcceptedAt int64  `json:"acceptedAt,omitempty"`
	DeclinedAt int64  `json:"declinedAt,omitempty"`
}
