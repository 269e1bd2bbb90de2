package delete

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tutordesk/internal/identity"
	"tutordesk/internal/models"
	"tutordesk/pkg/response"
	"tutordesk/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type AvailabilityDeactivator interface {
	DeactivateAvailability(ctx context.Context, actor identity.Actor, kind models.SlotKind, id string) error
}

func New(log *slog.Logger, deactivator AvailabilityDeactivator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability_templates.delete.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		err := deactivator.DeactivateAvailability(r.Context(), identity.FromRequest(r), models.SlotRecurring, id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Availability template not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "availability template not found"))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("Caller does not own the tutor side")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "not the owning tutor"))
			return
		}

		if err != nil {
			log.Error("Failed to deactivate availability template", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to deactivate availability template"))
			return
		}

		log.Info("Availability template deactivated", slog.String("id", id))

		render.JSON(w, r, response.Response{})
	}
}
