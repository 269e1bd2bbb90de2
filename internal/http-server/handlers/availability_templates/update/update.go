package update

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

type TemplateUpdater interface {
	UpdateAvailabilityTemplate(ctx context.Context, actor identity.Actor, id string, req *api.AvailabilityTemplateRequest) (*api.AvailabilityTemplateResponse, error)
}

type Request struct {
	api.AvailabilityTemplateRequest
}

type Response struct {
	response.Response
	Template api.AvailabilityTemplateResponse `json:"template,omitempty"`
}

func New(log *slog.Logger, updater TemplateUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability_templates.update.New"

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

		template, err := updater.UpdateAvailabilityTemplate(r.Context(), identity.FromRequest(r), id, &req.AvailabilityTemplateRequest)

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

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to update availability template", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to update availability template"))
			return
		}

		log.Info("Availability template updated", slog.String("id", id))

		render.JSON(w, r, Response{
			Template: *template,
		})
	}
}
