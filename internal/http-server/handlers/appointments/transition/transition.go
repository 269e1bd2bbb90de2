package transition

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tutordesk/api"
	"tutordesk/internal/identity"
	"tutordesk/internal/models"
	"tutordesk/pkg/response"
	"tutordesk/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type LifecycleTransitioner interface {
	Transition(ctx context.Context, actor identity.Actor, id string, to models.AppointmentStatus) (*api.AppointmentResponse, error)
}

type Response struct {
	response.Response
	Appointment api.AppointmentResponse `json:"appointment"`
}

// New returns a handler moving an appointment to the given target status.
// The same handler backs the confirm, start, cancel and no-show routes.
func New(log *slog.Logger, transitioner LifecycleTransitioner, target models.AppointmentStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.transition.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("target", string(target)),
		)

		id := chi.URLParam(r, "id")

		appointment, err := transitioner.Transition(r.Context(), identity.FromRequest(r), id, target)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Appointment not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "appointment not found"))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller is not a participant of the appointment")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "not a participant of the appointment"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("Transition not allowed from current status")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "transition not allowed from current status"))
			return
		}

		if err != nil {
			log.Error("Failed to transition appointment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to transition appointment"))
			return
		}

		log.Info("Appointment transitioned",
			slog.String("id", id),
			slog.String("status", appointment.Status),
		)

		render.JSON(w, r, Response{
			Appointment: *appointment,
		})
	}
}
