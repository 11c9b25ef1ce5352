package api

import "net/http"

// flushResponse flushes w if it supports http.Flusher.
func flushResponse(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
