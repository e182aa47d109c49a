// File: internal/resultserver/handlers.go
package resultserver

import (
	"fmt"
	"io"
	"log"
	"net/http"
)

const (
	BasePath    = "/breaky"
	ValidPath   = BasePath + "/valid"
	InvalidPath = BasePath + "/invalid"

	validReply   = "Yay"
	invalidReply = "Sorry to hear that"

	// maxErrorBodyBytes caps how much of an /invalid report is kept.
	maxErrorBodyBytes = 1 << 20
)

// ValidHandler records a passing run.
func (s *Server) ValidHandler(w http.ResponseWriter, r *http.Request) {
	log.Printf("ResultServer: ========= Got a POST ========= %s", r.RequestURI)
	log.Printf("ResultServer: valid")
	respondWithText(w, http.StatusOK, validReply)
	s.record(Verdict{Status: StatusValid, Path: r.URL.Path})
}

// InvalidHandler records a failing run; the request body is the failure detail.
func (s *Server) InvalidHandler(w http.ResponseWriter, r *http.Request) {
	log.Printf("ResultServer: ========= Got a POST ========= %s", r.RequestURI)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxErrorBodyBytes+1))
	if err != nil {
		log.Printf("ResultServer: Failed to read error report after %d bytes: %v", len(body), err)
	}
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
		log.Printf("ResultServer: Error report exceeds %d bytes, keeping the first %d", maxErrorBodyBytes, maxErrorBodyBytes)
	}
	detail := string(body)
	log.Printf("ResultServer: Error: %s", detail)
	respondWithText(w, http.StatusOK, invalidReply)
	s.record(Verdict{Status: StatusInvalid, Detail: detail, Path: r.URL.Path})
}

// UnknownPostHandler answers POSTs to any other path. Such a POST still ends
// the run, as a failure.
func (s *Server) UnknownPostHandler(w http.ResponseWriter, r *http.Request) {
	log.Printf("ResultServer: ========= Got a POST ========= %s", r.RequestURI)
	body := fmt.Sprintf("WTF? %s (wanted %s or %s)", r.RequestURI, ValidPath, InvalidPath)
	log.Printf("ResultServer: %s", body)
	respondWithText(w, http.StatusNotFound, body)
	s.record(Verdict{Status: StatusInvalid, Detail: body, Path: r.URL.Path})
}
