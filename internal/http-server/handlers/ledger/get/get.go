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

type LedgerProvider interface {
	GetLedger(ctx context.Context, id string) (*api.LedgerResponse, error)
	ListLedgers(ctx context.Context, studentID, tutorID, subject *string) ([]*api.LedgerResponse, error)
}

type Response struct {
	response.Response
	Ledger  *api.LedgerResponse   `json:"ledger,omitempty"`
	Ledgers []*api.LedgerResponse `json:"ledgers,omitempty"`
}

func New(log *slog.Logger, provider LedgerProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ledger.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if id := chi.URLParam(r, "id"); id != "" {
			ledger, err := provider.GetLedger(r.Context(), id)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("Ledger not found", slog.String("id", id))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "ledger not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get ledger", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get ledger"))
				return
			}

			render.JSON(w, r, Response{Ledger: ledger})
			return
		}

		studentID := optionalParam(r, "student_id")
		tutorID := optionalParam(r, "tutor_id")
		subject := optionalParam(r, "subject")

		ledgers, err := provider.ListLedgers(r.Context(), studentID, tutorID, subject)

		if errors.Is(err, response.ErrValidation) {
			log.Error("Validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to list ledgers", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list ledgers"))
			return
		}

		render.JSON(w, r, Response{Ledgers: ledgers})
	}
}

func optionalParam(r *http.Request, name string) *string {
	if raw := r.URL.Query().Get(name); raw != "" {
		return &raw
	}
	return nil
}
