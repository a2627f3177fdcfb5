package web

import "github.com/rohanthewiz/rweb"

const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 500 500"><rect width="500" height="500" rx="40" fill="#2f4f3f"/><text x="250" y="310" font-family="Arial,sans-serif" font-weight="900" font-size="200" fill="white" text-anchor="middle">HN</text></svg>`

// SetupStaticFiles serves the inline favicon; every page is rendered server-side.
func SetupStaticFiles(s *rweb.Server) {
	s.Get("/favicon.ico", func(c rweb.Context) error {
		c.Response().SetHeader("Content-Type", "image/svg+xml")
		c.Response().SetHeader("Cache-Control", "public, max-age=86400")
		return c.Bytes([]byte(faviconSVG))
	})
}
