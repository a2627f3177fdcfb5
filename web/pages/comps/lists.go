package comps

import (
	"sort"
	"strconv"
	"time"

	"homenotes/models"

	"github.com/rohanthewiz/element"
)

// NoteList renders note titles with their last edit time.
type NoteList struct {
	Notes []models.Note
}

func (n NoteList) Render(b *element.Builder) (x any) {
	if len(n.Notes) == 0 {
		b.P("class", "empty-state").T("No notes yet")
		return
	}
	b.UlClass("note-list").R(
		b.Wrap(func() {
			element.ForEach(n.Notes, func(note models.Note) {
				title := note.Title
				if title == "" {
					title = "(untitled)"
				}
				b.Li("class", "note-row", "data-id", note.ID).R(
					b.Span("class", "note-title").T(title),
					b.Wrap(func() {
						if note.IsShared {
							b.SpanClass("note-badge").T(" shared")
						}
						if note.Password != "" {
							b.SpanClass("note-badge").T(" locked")
						}
					}),
					b.Small("style", "color:gray").T(" "+formatMillis(note.UpdatedAt)),
				)
			})
		}),
	)
	return
}

// ShoppingList renders each list with a count of open items.
type ShoppingList struct {
	Lists models.ShoppingLists
}

func (s ShoppingList) Render(b *element.Builder) (x any) {
	names := make([]string, 0, len(s.Lists))
	for name := range s.Lists {
		names = append(names, name)
	}
	sort.Strings(names)

	b.UlClass("shopping-lists").R(
		b.Wrap(func() {
			element.ForEach(names, func(name string) {
				open := 0
				for _, it := range s.Lists[name] {
					if !it.Completed {
						open++
					}
				}
				b.Li().T(name + ": " + strconv.Itoa(open) + " open of " + strconv.Itoa(len(s.Lists[name])))
			})
		}),
	)
	return
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("Jan 2, 2006 15:04")
}
