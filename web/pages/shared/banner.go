package shared

import "github.com/rohanthewiz/element"

type Banner struct {
	Title string
}

func (b Banner) Render(builder *element.Builder) any {
	builder.Header("style", "background-color:#2f4f3f; color:white; padding:16px 20px").R(
		builder.H1("style", "margin:0; font-size:1.4em").T(b.Title),
	)
	return nil
}
