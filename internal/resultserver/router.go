// File: internal/resultserver/router.go
package resultserver

import (
	"net/http"

	"github.com/gorilla/mux"
)

func NewRouter(s *Server, docRoot string) *mux.Router {
	// Paths are matched as sent; "//x" must reach the unknown POST handler
	// rather than a redirect.
	router := mux.NewRouter().SkipClean(true)
	router.Use(LoggingMiddleware)

	router.HandleFunc(ValidPath, s.ValidHandler).Methods(http.MethodPost).MatcherFunc(withoutQuery)
	router.HandleFunc(InvalidPath, s.InvalidHandler).Methods(http.MethodPost).MatcherFunc(withoutQuery)
	router.PathPrefix("/").Methods(http.MethodPost).HandlerFunc(s.UnknownPostHandler)

	// Test page, scripts and the extension's resources.
	router.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).Handler(http.FileServer(http.Dir(docRoot)))

	return router
}

// withoutQuery rejects result POSTs carrying a query string, even an empty one.
func withoutQuery(r *http.Request, _ *mux.RouteMatch) bool {
	return r.URL.RawQuery == "" && !r.URL.ForceQuery
}
