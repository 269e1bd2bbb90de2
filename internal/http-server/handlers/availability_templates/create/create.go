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

type TemplateCreator interface {
	CreateAvailabilityTemplate(ctx context.Context, actor identity.Actor, req *api.AvailabilityTemplateRequest) (*api.AvailabilityTemplateResponse, error)
}

type Request struct {
	api.AvailabilityTemplateRequest
}

type Response struct {
	response.Response
	Template api.AvailabilityTemplateResponse `json:"template,omitempty"`
}

func New(log *slog.Logger, creator TemplateCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability_templates.create.New"

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

		template, err := creator.CreateAvailabilityTemplate(r.Context(), identity.FromRequest(r), &req.AvailabilityTemplateRequest)

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
			log.Error("Failed to create availability template", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create availability template"))
			return
		}

		log.Info("Availability template created", slog.String("id", template.ID))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Template: *template,
		})
	}
}
