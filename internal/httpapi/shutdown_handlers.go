package httpapi

import (
	"crypto/subtle"
	"net"
	"net/http"
)

type ShutdownHandler struct {
	Token string
	Stop  func()
}

// Shutdown stops the server for a local caller holding the token. The
// response is written before shutdown starts.
func (h ShutdownHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr can be a bare host
		host = r.RemoteAddr
	}
	if host != "127.0.0.1" && host != "::1" && host != "localhost" {
		WriteError(w, r, http.StatusForbidden, codeForbidden, "shutdown is local only")
		return
	}

	got := r.Header.Get("X-Shutdown-Token")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
		WriteError(w, r, http.StatusUnauthorized, codeUnauthorized, "bad shutdown token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "shutting down"})
	go h.Stop()
}
