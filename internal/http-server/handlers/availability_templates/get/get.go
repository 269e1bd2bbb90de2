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

type TemplateProvider interface {
	GetAvailabilityTemplate(ctx context.Context, id string) (*api.AvailabilityTemplateResponse, error)
	ListAvailabilityTemplates(ctx context.Context, tutorID string) ([]*api.AvailabilityTemplateResponse, error)
}

type Response struct {
	response.Response
	Template  *api.AvailabilityTemplateResponse  `json:"template,omitempty"`
	Templates []*api.AvailabilityTemplateResponse `json:"templates,omitempty"`
}

func New(log *slog.Logger, provider TemplateProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability_templates.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if id := chi.URLParam(r, "id"); id != "" {
			template, err := provider.GetAvailabilityTemplate(r.Context(), id)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("Availability template not found", slog.String("id", id))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "availability template not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get availability template", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get availability template"))
				return
			}

			render.JSON(w, r, Response{Template: template})
			return
		}

		tutorID := r.URL.Query().Get("tutor_id")

		templates, err := provider.ListAvailabilityTemplates(r.Context(), tutorID)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to list availability templates", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list availability templates"))
			return
		}

		render.JSON(w, r, Response{Templates: templates})
	}
}
