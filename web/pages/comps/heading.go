package comps

import "github.com/rohanthewiz/element"

type Heading struct {
	Title string
}

func (h Heading) Render(b *element.Builder) (x any) {
	b.H2("style", "color:#2f4f3f; border-bottom:1px solid #ccc").T(h.Title)
	return
}
