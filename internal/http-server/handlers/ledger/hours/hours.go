package hours

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

type ManualHoursRecorder interface {
	RecordManualHours(ctx context.Context, actor identity.Actor, req *api.ManualHoursRequest) (*api.LedgerResponse, error)
}

type Request struct {
	api.ManualHoursRequest
}

type Response struct {
	response.Response
	Ledger api.LedgerResponse `json:"ledger"`
}

func New(log *slog.Logger, recorder ManualHoursRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ledger.hours.New"

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

		ledger, err := recorder.RecordManualHours(r.Context(), identity.FromRequest(r), &req.ManualHoursRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller does not own the tutor side")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "not the owning tutor"))
			return
		}

		if err != nil {
			log.Error("Failed to record manual hours", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to record manual hours"))
			return
		}

		log.Info("Manual hours recorded",
			slog.String("ledger_id", ledger.ID),
			slog.Float64("unpaid_hours", ledger.UnpaidHours),
		)

		render.JSON(w, r, Response{
			Ledger: *ledger,
		})
	}
}
