package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tutordesk/api"
	"tutordesk/pkg/response"
	"tutordesk/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type PaymentProvider interface {
	GetPayment(ctx context.Context, id string) (*api.PaymentResponse, error)
}

type Response struct {
	response.Response
	Payment api.PaymentResponse `json:"payment"`
}

func New(log *slog.Logger, provider PaymentProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.payments.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		payment, err := provider.GetPayment(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Payment not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "payment not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get payment"))
			return
		}

		render.JSON(w, r, Response{
			Payment: *payment,
		})
	}
}
