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

const dateLayout = "2006-01-02"

type SlotProvider interface {
	GetSlot(ctx context.Context, id string) (*api.SlotResponse, error)
	ListSlots(ctx context.Context, tutorID string, from, to *time.Time) ([]*api.SlotResponse, error)
}

type Response struct {
	response.Response
	Slot  *api.SlotResponse   `json:"slot,omitempty"`
	Slots []*api.SlotResponse `json:"slots,omitempty"`
}

func New(log *slog.Logger, provider SlotProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if id := chi.URLParam(r, "id"); id != "" {
			slot, err := provider.GetSlot(r.Context(), id)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("Slot not found", slog.String("id", id))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "slot not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get slot", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get slot"))
				return
			}

			render.JSON(w, r, Response{Slot: slot})
			return
		}

		tutorID := r.URL.Query().Get("tutor_id")

		from, err := parseDateParam(r, "from")
		if err != nil {
			log.Error("Invalid from date", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "from must be formatted as 2006-01-02"))
			return
		}

		to, err := parseDateParam(r, "to")
		if err != nil {
			log.Error("Invalid to date", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "to must be formatted as 2006-01-02"))
			return
		}

		slots, err := provider.ListSlots(r.Context(), tutorID, from, to)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to list slots", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list slots"))
			return
		}

		render.JSON(w, r, Response{Slots: slots})
	}
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
