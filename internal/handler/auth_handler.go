/*
Package handler provides HTTP handler functions for account registration and login.
*/
package handler

import (
	"errors"
	"net/http"

	"hichat/internal/app/identity"
	"hichat/internal/app/user"
	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/logx"
	"hichat/internal/pkg/req"
	"hichat/internal/pkg/resp"
)

type CredentialsInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister creates an account and returns a credential for it.
// When proof-of-work is enabled the request must carry a proof token.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Pow.Enabled() && !deps.Pow.ConsumeProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input CredentialsInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		cred, err := deps.Identity.Register(r.Context(), input.Username, input.Password)
		if err != nil {
			if errors.Is(err, identity.ErrDuplicateUsername) {
				logx.Warn("registration conflict: username already exists", "username", input.Username)
			}
			resp.RespondError(w, r, identityError(err))
			return
		}

		logx.Info("account registered", "username", cred.Username)
		resp.RespondSuccess(w, r, cred)
	}
}

// HandleLogin verifies user credentials and issues a fresh credential.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CredentialsInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		cred, err := deps.Identity.Login(r.Context(), input.Username, input.Password)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				logx.Warn("login rejected", "username", input.Username)
			}
			resp.RespondError(w, r, identityError(err))
			return
		}

		resp.RespondSuccess(w, r, cred)
	}
}

// identityError maps identity and validation failures onto client-facing codes.
func identityError(err error) *errs.CustomError {
	switch {
	case errors.Is(err, user.ErrInvalidUsername):
		return errs.NewError(errs.ErrInvalidUsername)
	case errors.Is(err, user.ErrInvalidPassword):
		return errs.NewError(errs.ErrInvalidPassword)
	case errors.Is(err, identity.ErrDuplicateUsername):
		return errs.NewError(errs.ErrDuplicateUsername)
	case errors.Is(err, identity.ErrInvalidCredentials):
		return errs.NewError(errs.ErrInvalidCredentials)
	case errors.Is(err, identity.ErrInvalidOrExpiredCredential):
		return errs.NewError(errs.ErrInvalidOrExpiredCredential)
	default:
		logx.Error(err, "identity operation failed")
		return errs.NewError(errs.ErrUnknown)
	}
}
