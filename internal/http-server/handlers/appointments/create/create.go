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

// HeaderIdempotencyKey lets a client pin retries to a single booking
// attempt. Without it a key is derived from the request fields.
const HeaderIdempotencyKey = "Idempotency-Key"

type AppointmentBooker interface {
	BookAppointment(ctx context.Context, actor identity.Actor, req *api.AppointmentRequest, idempotencyKey *string) (*api.AppointmentResponse, bool, error)
}

type Request struct {
	api.AppointmentRequest
}

type Response struct {
	response.Response
	Appointment api.AppointmentResponse `json:"appointment"`
	Duplicate   bool                    `json:"duplicate,omitempty"`
}

func New(log *slog.Logger, booker AppointmentBooker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.create.New"

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

		var idemKey *string
		if key := r.Header.Get(HeaderIdempotencyKey); key != "" {
			idemKey = &key
		}

		appointment, duplicate, err := booker.BookAppointment(r.Context(), identity.FromRequest(r), &req.AppointmentRequest, idemKey)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller is not a participant of the booking")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "not a participant of the booking"))
			return
		}

		if errors.Is(err, response.ErrSlotNotAvailable) {
			log.Error("Requested time conflicts with an existing appointment")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.SLOT_NOT_AVAILABLE), "requested time is not available"))
			return
		}

		if errors.Is(err, response.ErrDuplicateRequest) {
			log.Error("Duplicate booking request still in flight")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.DUPLICATE_REQUEST), "identical booking request is already being processed"))
			return
		}

		if err != nil {
			log.Error("Failed to book appointment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to book appointment"))
			return
		}

		log.Info("Appointment booked",
			slog.String("id", appointment.ID),
			slog.Bool("duplicate", duplicate),
		)

		if !duplicate {
			w.WriteHeader(http.StatusCreated)
		}

		render.JSON(w, r, Response{
			Appointment: *appointment,
			Duplicate:   duplicate,
		})
	}
}
