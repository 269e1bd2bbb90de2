package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tutordesk/api"
	"tutordesk/pkg/response"
	"tutordesk/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type AppointmentProvider interface {
	GetAppointment(ctx context.Context, id string) (*api.AppointmentResponse, error)
	ListAppointments(ctx context.Context, studentID, tutorID *string, from, to *time.Time, status *string) ([]*api.AppointmentResponse, error)
}

type Response struct {
	response.Response
	Appointment  *api.AppointmentResponse   `json:"appointment,omitempty"`
	Appointments []*api.AppointmentResponse `json:"appointments,omitempty"`
}

func New(log *slog.Logger, provider AppointmentProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if id := chi.URLParam(r, "id"); id != "" {
			appointment, err := provider.GetAppointment(r.Context(), id)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("Appointment not found", slog.String("id", id))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "appointment not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get appointment", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get appointment"))
				return
			}

			render.JSON(w, r, Response{Appointment: appointment})
			return
		}

		studentID := optionalParam(r, "student_id")
		tutorID := optionalParam(r, "tutor_id")
		status := optionalParam(r, "status")

		from, err := parseTimeParam(r, "from")
		if err != nil {
			log.Error("Invalid from timestamp", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "from must be an RFC 3339 timestamp"))
			return
		}

		to, err := parseTimeParam(r, "to")
		if err != nil {
			log.Error("Invalid to timestamp", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "to must be an RFC 3339 timestamp"))
			return
		}

		appointments, err := provider.ListAppointments(r.Context(), studentID, tutorID, from, to, status)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to list appointments", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list appointments"))
			return
		}

		render.JSON(w, r, Response{Appointments: appointments})
	}
}

func optionalParam(r *http.Request, name string) *string {
	if raw := r.URL.Query().Get(name); raw != "" {
		return &raw
	}
	return nil
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
