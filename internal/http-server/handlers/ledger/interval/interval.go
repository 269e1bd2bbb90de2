package interval

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tutordesk/api"
	"tutordesk/internal/identity"
	"tutordesk/pkg/response"
	"tutordesk/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type IntervalSetter interface {
	SetPaymentInterval(ctx context.Context, actor identity.Actor, ledgerID string, interval float64) (*api.LedgerResponse, error)
}

type Request struct {
	api.PaymentIntervalRequest
}

type Response struct {
	response.Response
	Ledger api.LedgerResponse `json:"ledger"`
}

func New(log *slog.Logger, setter IntervalSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ledger.interval.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		ledger, err := setter.SetPaymentInterval(r.Context(), identity.FromRequest(r), id, req.PaymentInterval)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Ledger not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "ledger not found"))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller does not own the tutor side")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "not the owning tutor"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to set payment interval", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to set payment interval"))
			return
		}

		log.Info("Payment interval updated",
			slog.String("ledger_id", id),
			slog.Float64("payment_interval", ledger.PaymentInterval),
		)

		render.JSON(w, r, Response{
			Ledger: *ledger,
		})
	}
}
