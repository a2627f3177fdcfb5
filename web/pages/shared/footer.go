package shared

import "github.com/rohanthewiz/element"

// Footer shows where live updates come from.
type Footer struct{}

func (f Footer) Render(b *element.Builder) any {
	b.Div("style", "background-color:#eee; padding:8px 20px").R(
		b.P("style", "color:gray; margin:0").T("Live updates via /events"),
	)
	return nil
}
