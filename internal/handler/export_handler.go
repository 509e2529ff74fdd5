package handler

import (
	"context"
	"net/http"
	"time"

	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/logx"
	"hichat/internal/pkg/resp"
)

const exportTimeout = 30 * time.Second

// HandleExportHistory uploads the visible chat history and returns a download link.
func HandleExportHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requester(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if deps.Exporter == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
		defer cancel()

		exp, err := deps.Exporter.ExportHistory(ctx, id)
		if err != nil {
			logx.Error(err, "history export failed", "user_id", id.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrExportFailed))
			return
		}

		logx.Info("history exported", "user_id", id.ID, "key", exp.Key, "messages", exp.Messages)
		resp.RespondSuccess(w, r, exp)
	}
}
