package http

import "net/http"

// Start levanta el servidor HTTP en addr. Bloquea hasta que el listener
// falla o se cierra.
func Start(addr string, handler http.Handler) error {
	return http.ListenAndServe(addr, handler)
}
