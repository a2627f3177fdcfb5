package models

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	n := Note{ID: "1", Categories: []string{"work", "", "home", "work"}, SharedID: "s1"}
	n.Normalize()

	if !n.IsShared {
		t.Error("expected IsShared to follow SharedID")
	}
	if !reflect.DeepEqual(n.Categories, []string{"work", "home"}) {
		t.Errorf("categories not deduplicated: %v", n.Categories)
	}
	if n.Images == nil || n.ListSections == nil || n.VoiceNotes == nil {
		t.Error("expected nil sequences to become empty")
	}

	n.SharedID = ""
	n.Normalize()
	if n.IsShared || n.IsSharedNote() {
		t.Error("expected IsShared cleared without a SharedID")
	}
}

func TestCloneIsDeep(t *testing.T) {
	n := Note{
		ID:           "1",
		Categories:   []string{"a"},
		ListSections: []ListSection{{ID: "s", Items: []ListItem{{Text: "x"}}}},
	}
	c := n.Clone()
	c.Categories[0] = "b"
	c.ListSections[0].Items[0].Text = "y"

	if n.Categories[0] != "a" || n.ListSections[0].Items[0].Text != "x" {
		t.Error("clone shares memory with the original")
	}
}

func TestLockUnlock(t *testing.T) {
	var n Note
	if err := n.Unlock("anything"); err != nil {
		t.Fatalf("unlocked note should accept any password: %v", err)
	}
	if err := n.Lock(""); err == nil {
		t.Fatal("expected empty password to be rejected")
	}
	if err := n.Lock("secret"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !n.IsLocked() || n.Password == "secret" {
		t.Fatal("expected a stored hash, not the plain text")
	}
	if err := n.Unlock("wrong"); err != ErrWrongPassword {
		t.Errorf("expected ErrWrongPassword, got %v", err)
	}
	if err := n.Unlock("secret"); err != nil {
		t.Errorf("expected unlock to succeed, got %v", err)
	}
}

func TestEnsureSentinel(t *testing.T) {
	got := EnsureSentinel([]Category{{ID: "w", Name: "Work"}, AllCategory(), AllCategory()})
	if len(got) != 2 || got[0].ID != AllCategoryID || got[1].ID != "w" {
		t.Errorf("unexpected list: %+v", got)
	}
	if got := EnsureSentinel(nil); len(got) != 1 {
		t.Errorf("expected sentinel on empty input, got %+v", got)
	}
}

func TestHasCategoryName(t *testing.T) {
	list := []Category{AllCategory(), {ID: "w", Name: "Work"}}
	if !HasCategoryName(list, "  work ") {
		t.Error("expected case-insensitive match")
	}
	if HasCategoryName(list, "home") {
		t.Error("unexpected match")
	}
}

func TestPresenceStale(t *testing.T) {
	p := PresenceInfo{LastActive: 1_000}
	if p.IsStale(31_000) {
		t.Error("30s old entry should still be live")
	}
	if !p.IsStale(31_001) {
		t.Error("entry older than 30s should be stale")
	}
}

func TestWeekID(t *testing.T) {
	// Wednesday 2024-03-13 belongs to the week of Monday 2024-03-11 (month index 2).
	wed := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	if got := WeekID(wed); got != "week_2024_2_11" {
		t.Errorf("WeekID = %s", got)
	}
	// Sunday rolls back to the previous Monday.
	sun := time.Date(2024, time.March, 17, 10, 0, 0, 0, time.UTC)
	if got := WeekID(sun); got != "week_2024_2_11" {
		t.Errorf("WeekID(sunday) = %s", got)
	}
}

func TestSharedNoteRoundTrip(t *testing.T) {
	n := NewNote("t", "c", 10)
	n.Categories = []string{"work"}
	n.SharedID = "s1"
	n.OwnerID = "u1"

	sn := SharedNoteFromNote(n)
	sn.Title = "remote"
	sn.UpdatedAt = 20

	local := n.Clone()
	sn.ApplyTo(&local)
	if local.ID != n.ID || local.Title != "remote" || local.UpdatedAt != 20 {
		t.Errorf("unexpected applied note: %+v", local)
	}
	if !local.IsShared {
		t.Error("expected local copy to stay shared")
	}
}
