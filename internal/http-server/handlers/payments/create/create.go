package create

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
	"github.com/go-chi/render"
)

type PaymentRecorder interface {
	RecordPayment(ctx context.Context, actor identity.Actor, req *api.PaymentRequest) (*api.PaymentResponse, error)
}

type Request struct {
	api.PaymentRequest
}

type Response struct {
	response.Response
	Payment api.PaymentResponse `json:"payment"`
}

func New(log *slog.Logger, recorder PaymentRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.payments.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.Any("request", req))

		payment, err := recorder.RecordPayment(r.Context(), identity.FromRequest(r), &req.PaymentRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Ledger not found", slog.String("ledger_id", req.LedgerID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "ledger not found"))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller is not a participant of the ledger")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "not a participant of the ledger"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to record payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to record payment"))
			return
		}

		log.Info("Payment recorded",
			slog.String("id", payment.ID),
			slog.String("status", payment.Status),
		)

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Payment: *payment,
		})
	}
}
