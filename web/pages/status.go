// Package pages renders the server-side HTML views.
package pages

import (
	"strconv"

	"homenotes/app"
	"homenotes/models"
	"homenotes/web/pages/comps"
	"homenotes/web/pages/shared"

	"github.com/rohanthewiz/element"
)

// Status is the landing page: sync state, notes and shopping lists of this device.
type Status struct {
	shared.Page
	Info  app.Status
	Notes []models.Note
	Lists models.ShoppingLists
}

// NewStatus snapshots a for rendering.
func NewStatus(a *app.App) Status {
	return Status{
		Page:  shared.Page{Title: "homenotes"},
		Info:  a.Status(),
		Notes: a.State.Notes(),
		Lists: a.State.ShoppingLists(),
	}
}

func (s Status) Render() string {
	b := element.NewBuilder()

	b.Html("lang", "en").R(
		b.Head().R(
			b.Meta("charset", "UTF-8"),
			b.Meta("name", "viewport", "content", "width=device-width, initial-scale=1.0"),
			b.Title().T(s.Title),
		),
		b.Body("style", "font-family:sans-serif; margin:0").R(
			element.RenderComponents(b, s.Banner()),
			b.Div("style", "padding:0 20px").R(
				element.RenderComponents(b, comps.Heading{Title: "Sync"}),
				s.renderInfo(b),
				element.RenderComponents(b,
					comps.Heading{Title: "Notes (" + strconv.Itoa(len(s.Notes)) + ")"},
					comps.NoteList{Notes: s.Notes},
					comps.Heading{Title: "Shopping"},
					comps.ShoppingList{Lists: s.Lists},
				),
				b.Div("id", "events", "style", "font-family:monospace; color:#555").R(),
			),
			element.RenderComponents(b, s.Footer()),
			b.Script().T(`
				if (typeof(EventSource) !== "undefined") {
					const evtSource = new EventSource("/events");
					const log = document.getElementById("events");
					evtSource.onmessage = function(event) {
						const line = document.createElement("div");
						line.textContent = event.data;
						log.prepend(line);
					};
				}
			`),
		),
	)
	return b.String()
}

func (s Status) renderInfo(b *element.Builder) (x any) {
	user := "nobody"
	switch {
	case s.Info.Guest:
		user = "guest"
	case s.Info.User != nil:
		user = s.Info.User.DisplayName()
	}
	state := "offline"
	if s.Info.Connected {
		state = "synced"
	} else if s.Info.LastError != "" {
		state = "error: " + s.Info.LastError
	}

	b.UlClass("sync-info").R(
		b.Li().T("User: "+user),
		b.Li().T("Remote: "+s.Info.RemoteDriver),
		b.Li().T("Cache: "+s.Info.CacheDriver),
		b.Li("id", "sync-status").T("State: "+state),
		b.Li().T("Categories: "+strconv.Itoa(s.Info.Categories)),
	)
	return
}
