package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"
	"golang.org/x/crypto/bcrypt"
)

// ErrWrongPassword is returned by Unlock when the password does not match the note's lock.
var ErrWrongPassword = errors.New("wrong note password")

// bcryptCost matches the cost used for account passwords.
const bcryptCost = 12

// Note is the user's own copy of a note, as held in memory, in the local cache
// and embedded in the remote user document.
// Design notes:
// - IsShared and SharedID travel together; Normalize enforces it
// - Categories is a set of category ids; dangling ids are tolerated
// - Password holds a bcrypt hash, never the plain text
type Note struct {
	ID            string                      `json:"id"`
	Title         string                      `json:"title"`
	Content       string                      `json:"content"`
	Categories    []string                    `json:"categories"`
	Images        []ImageRef                  `json:"images"`
	ListSections  []ListSection               `json:"listSections"`
	VoiceNotes    []VoiceRef                  `json:"voiceNotes"`
	Password      string                      `json:"password,omitempty"`
	CreatedAt     int64                       `json:"createdAt"`
	UpdatedAt     int64                       `json:"updatedAt"`
	IsShared      bool                        `json:"isShared,omitempty"`
	SharedID      string                      `json:"sharedId,omitempty"`
	OwnerID       string                      `json:"ownerId,omitempty"`
	Collaborators map[string]CollaboratorInfo `json:"collaborators,omitempty"`
}

// ImageRef points at an image attached to a note. Data is usually a compressed data URL.
type ImageRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Data string `json:"data,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// ListSection is an ordered list embedded in a note (bulleted, numbered or checklist).
type ListSection struct {
	ID    string     `json:"id"`
	Title string     `json:"title,omitempty"`
	Type  string     `json:"type"`
	Items []ListItem `json:"items"`
}

type ListItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed,omitempty"`
}

// VoiceRef is a transcribed voice note.
type VoiceRef struct {
	ID         string `json:"id"`
	Transcript string `json:"transcript"`
	Duration   int64  `json:"duration,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

type CollaboratorInfo struct {
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	JoinedAt int64  `json:"joinedAt"`
}

const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
)

// NewNote returns an empty note with a fresh id and both timestamps set to now.
func NewNote(title, content string, now int64) Note {
	n := Note{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	n.Normalize()
	return n
}

// IsSharedNote reports whether saves should go to the shared document.
func (n *Note) IsSharedNote() bool {
	return n.IsShared && n.SharedID != ""
}

// Normalize enforces the note invariants in place:
// IsShared follows SharedID, categories are deduplicated in first-seen order,
// and nil sequences become empty ones so remote documents never carry nulls.
func (n *Note) Normalize() {
	n.IsShared = n.SharedID != ""
	n.Categories = UniqueStrings(n.Categories)
	if n.Images == nil {
		n.Images = []ImageRef{}
	}
	if n.ListSections == nil {
		n.ListSections = []ListSection{}
	}
	if n.VoiceNotes == nil {
		n.VoiceNotes = []VoiceRef{}
	}
}

// Clone returns a deep copy so callers can mutate the result without touching shared state.
func (n Note) Clone() Note {
	c := n
	c.Categories = append([]string{}, n.Categories...)
	c.Images = append([]ImageRef{}, n.Images...)
	c.VoiceNotes = append([]VoiceRef{}, n.VoiceNotes...)
	c.ListSections = make([]ListSection, len(n.ListSections))
	for i, s := range n.ListSections {
		s.Items = append([]ListItem{}, s.Items...)
		c.ListSections[i] = s
	}
	if n.Collaborators != nil {
		c.Collaborators = make(map[string]CollaboratorInfo, len(n.Collaborators))
		for k, v := range n.Collaborators {
			c.Collaborators[k] = v
		}
	}
	return c
}

// HasCategory reports whether id is among the note's category assignments.
func (n *Note) HasCategory(id string) bool {
	for _, c := range n.Categories {
		if c == id {
			return true
		}
	}
	return false
}

// Lock protects the note with a password. The plain text is never stored.
func (n *Note) Lock(password string) error {
	if password == "" {
		return serr.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return serr.Wrap(err, "failed to hash note password")
	}
	n.Password = string(hash)
	return nil
}

// Unlock verifies the password against the stored hash.
func (n *Note) Unlock(password string) error {
	if n.Password == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(n.Password), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

func (n *Note) IsLocked() bool {
	return n.Password != ""
}

// UniqueStrings drops empty and duplicate entries, keeping first-seen order.
// It always returns a non-nil slice.
func UniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NowMillis is the default clock for every timestamp in the domain.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NewID returns an opaque unique id.
func NewID() string {
	return uuid.New().String()
}
