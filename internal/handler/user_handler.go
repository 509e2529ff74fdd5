package handler

import (
	"net/http"

	"hichat/internal/app/user"
	"hichat/internal/pkg/auth/jwt"
	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/resp"
)

// requester returns the identity carried by the request's verified credential.
func requester(r *http.Request) (user.Identity, bool) {
	payload := jwt.GetPayloadFromContext(r)
	if payload == nil {
		return user.Identity{}, false
	}
	return user.Identity{ID: payload.ID, Username: payload.Username}, true
}

// HandleMe returns the identity behind the bearer credential.
func HandleMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requester(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}
		resp.RespondSuccess(w, r, id)
	}
}
