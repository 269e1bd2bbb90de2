package receive

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

type PaymentReceiver interface {
	ReceivePayment(ctx context.Context, actor identity.Actor, paymentID string) (*api.PaymentResponse, error)
}

type Response struct {
	response.Response
	Payment api.PaymentResponse `json:"payment"`
}

func New(log *slog.Logger, receiver PaymentReceiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.payments.receive.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		payment, err := receiver.ReceivePayment(r.Context(), identity.FromRequest(r), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Payment not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "payment not found"))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller is not a participant of the ledger")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "not a participant of the ledger"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("Payment is not awaiting receipt")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "payment is not awaiting receipt"))
			return
		}

		if err != nil {
			log.Error("Failed to receive payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to receive payment"))
			return
		}

		log.Info("Payment received",
			slog.String("id", id),
			slog.Float64("hours_included", payment.HoursIncluded),
		)

		render.JSON(w, r, Response{
			Payment: *payment,
		})
	}
}
