package expand

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

type TemplateExpander interface {
	ExpandTemplate(ctx context.Context, actor identity.Actor, req *api.SlotExpandRequest) (*api.SlotExpandResult, error)
}

type Request struct {
	api.SlotExpandRequest
}

type Response struct {
	response.Response
	Result api.SlotExpandResult `json:"result"`
}

func New(log *slog.Logger, expander TemplateExpander) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.expand.New"

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

		result, err := expander.ExpandTemplate(r.Context(), identity.FromRequest(r), &req.SlotExpandRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Availability template not found", slog.String("template_id", req.TemplateID))
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

		if errors.Is(err, response.ErrEmptyWindow) {
			log.Error("Expansion window matches no dates")
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.EMPTY_WINDOW), "expansion window matches no dates"))
			return
		}

		if err != nil {
			log.Error("Failed to expand template", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to expand template"))
			return
		}

		log.Info("Template expanded",
			slog.Int("matched", result.Matched),
			slog.Int("created", result.Created),
			slog.Int("skipped", result.Skipped),
		)

		if result.Created > 0 {
			w.WriteHeader(http.StatusCreated)
		}

		render.JSON(w, r, Response{
			Result: *result,
		})
	}
}
