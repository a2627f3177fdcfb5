package web

import (
	"homenotes/app"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// NewServer builds the HTTP server over a. opts.Address selects the listen address;
// "localhost:" picks a free port.
func NewServer(a *app.App, opts rweb.ServerOptions) *rweb.Server {
	s := rweb.NewServer(opts)

	s.Use(rweb.RequestInfo)
	s.Use(CorsMiddleware)
	s.Use(SecurityHeadersMiddleware)
	s.Use(TokenAuthMiddleware(a))
	s.Use(LoggingMiddleware)

	setupRoutes(s, a)
	SetupStaticFiles(s)

	s.Get("/events", func(c rweb.Context) error {
		logger.Info("SSE connection established")
		return s.SetupSSE(c, openEventStream(a.Bus, a.Done()).ch)
	})
	return s
}

func Run(s *rweb.Server) error {
	logger.Info("homenotes web server starting")
	return s.Run()
}
