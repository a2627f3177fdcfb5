package state_test

import (
	"testing"

	"homenotes/models"
	"homenotes/state"
)

func TestAccessorsReturnCopies(t *testing.T) {
	s := state.New()
	s.SetNotes([]models.Note{{ID: "n1", Categories: []string{"work"}}})

	notes := s.Notes()
	notes[0].Categories[0] = "changed"
	notes[0].Title = "changed"

	got, ok := s.Note("n1")
	if !ok {
		t.Fatal("expected note n1")
	}
	if got.Categories[0] != "work" || got.Title != "" {
		t.Errorf("state was mutated through a returned copy: %+v", got)
	}
}

func TestSetCategoriesKeepsSentinel(t *testing.T) {
	s := state.New()
	s.SetCategories([]models.Category{{ID: "w", Name: "Work"}, models.AllCategory(), models.AllCategory()})

	cats := s.Categories()
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].ID != models.AllCategoryID {
		t.Errorf("expected sentinel first, got %s", cats[0].ID)
	}
}

func TestReceivingNests(t *testing.T) {
	s := state.New()
	s.BeginReceiving()
	s.BeginReceiving()
	s.EndReceiving()
	if !s.IsReceiving() {
		t.Fatal("expected still receiving after one of two ends")
	}
	s.EndReceiving()
	if s.IsReceiving() {
		t.Fatal("expected not receiving")
	}
	s.EndReceiving()
	if s.IsReceiving() {
		t.Fatal("extra EndReceiving must not go negative")
	}
}

func TestBusDeliversUntilUnsubscribed(t *testing.T) {
	b := state.NewBus()
	var got []string
	stop := b.Listen(func(ev state.Event) { got = append(got, ev.Type) })

	b.Emit(state.EventNotesChanged, nil)
	b.Toast("error", "boom")
	stop()
	b.Emit(state.EventNotesChanged, nil)

	if len(got) != 2 || got[0] != state.EventNotesChanged || got[1] != state.EventToast {
		t.Errorf("unexpected events: %v", got)
	}
}
