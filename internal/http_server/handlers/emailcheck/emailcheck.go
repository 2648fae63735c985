package emailcheck

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"billing_auth/internal/auth"
	resp "billing_auth/internal/lib/api/response"
	sl "billing_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Response struct {
	resp.Response
	Available bool `json:"available"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.emailcheck.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		email := r.URL.Query().Get("email")
		if email == "" {
			log.Warn("missing email parameter")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing 'email' parameter"))

			return
		}

		if err := validate.Var(email, "email"); err != nil {
			log.Warn("invalid email format")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid email format"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		available, err := authService.CheckEmailAvailability(ctx, email)
		if err != nil {
			log.Error("failed to check email availability", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			Available: available,
		})
	}
}
