package complete

import (
	"context"
	"errors"
	"io"
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

type AppointmentCompleter interface {
	Complete(ctx context.Context, actor identity.Actor, id string, req *api.AppointmentCompleteRequest) (*api.AppointmentCompleteResponse, error)
}

type Request struct {
	api.AppointmentCompleteRequest
}

type Response struct {
	response.Response
	api.AppointmentCompleteResponse
}

func New(log *slog.Logger, completer AppointmentCompleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.complete.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		var req Request

		// Body is optional: completing with no overrides uses the
		// scheduled times.
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		result, err := completer.Complete(r.Context(), identity.FromRequest(r), id, &req.AppointmentCompleteRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Appointment not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "appointment not found"))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller is not the appointment tutor")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "only the tutor can complete an appointment"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("Completion not allowed from current status")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "completion not allowed from current status"))
			return
		}

		if err != nil {
			log.Error("Failed to complete appointment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to complete appointment"))
			return
		}

		log.Info("Appointment completed",
			slog.String("id", id),
			slog.Float64("hours", result.Hours),
			slog.Bool("reminder_due", result.ReminderDue),
		)

		render.JSON(w, r, Response{
			AppointmentCompleteResponse: *result,
		})
	}
}
