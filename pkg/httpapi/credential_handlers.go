package httpapi

import (
	"net/http"

	"github.com/nocauto/noc-engine/pkg/util"
)

type saveCredentialRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSaveCredential upserts a credential owned by the caller, identified
// by the trusted X-Noc-Username header rather than any field in the body —
// a caller can only ever write their own credentials. Credentials are
// write-only over the API; they're read back only by the command executor.
func (s *Server) handleSaveCredential(w http.ResponseWriter, r *http.Request) {
	owner := callerUsername(r)
	if owner == "" {
		writeError(w, util.NewValidationError(usernameHeader+" header is required"))
		return
	}

	var req saveCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" || req.Username == "" || req.Password == "" {
		writeError(w, util.NewValidationError("name, username, and password are required"))
		return
	}

	if err := s.Credentials.Save(r.Context(), owner, req.Name, req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner_user": owner, "name": req.Name, "status": "ok"})
}
