// File: internal/resultserver/handler_utils.go
package resultserver

import (
	"log"
	"net/http"
	"strconv"
)

// respondWithText writes a plain-text reply that the browser must never cache.
func respondWithText(w http.ResponseWriter, code int, body string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Expires", "-1")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	w.WriteHeader(code)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Printf("ResultServer: Failed to write %d response: %v", code, err)
	}
}
