package handler

import (
	"errors"
	"net/http"

	"hichat/internal/app/order"
	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/logx"
	"hichat/internal/pkg/req"
	"hichat/internal/pkg/resp"
)

// HandleCreateOrder records an order for the authenticated user.
func HandleCreateOrder(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requester(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input order.Input
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		placed, err := deps.Orders.Place(r.Context(), id, input)
		if err != nil {
			var ve *order.ValidationError
			if errors.As(err, &ve) {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidOrder, ve.Error()))
				return
			}
			logx.Error(err, "failed to store order", "user_id", id.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("order placed", "order_id", placed.ID, "user_id", id.ID, "item", placed.Item, "quantity", placed.Quantity)
		resp.RespondCreated(w, r, placed)
	}
}

// HandleListOrders returns the authenticated user's orders, newest first.
func HandleListOrders(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requester(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		orders, err := deps.Orders.List(r.Context(), id)
		if err != nil {
			logx.Error(err, "failed to list orders", "user_id", id.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"orders": orders})
	}
}
