// Package verificationresend реализует HTTP-обработчик повторной отправки
// письма подтверждения почты текущему пользователю.
package verificationresend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credential-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credential-engine/internal/http/response"
	"github.com/magabrotheeeer/credential-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credential-engine/internal/models"
	services "github.com/magabrotheeeer/credential-engine/internal/services/auth"
)

// Handler обрабатывает HTTP-запросы повторной отправки подтверждения.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики повторной отправки подтверждения.
type Service interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	SendVerification(ctx context.Context, userUID string) error
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Повторная отправка письма подтверждения
// @Description Выпускает новый одноразовый токен подтверждения и ставит письмо в очередь. Прежний токен затирается.
// @Tags Auth
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response "Письмо поставлено в очередь или почта уже подтверждена"
// @Failure 400 {object} response.ErrorResponse "У учетной записи нет email"
// @Failure 401 {object} response.ErrorResponse "Недействительный access-токен"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/email/resend [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verificationresend"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("missing user uid in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	user, err := h.service.GetUser(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to get user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	if user.IsVerified {
		render.JSON(w, r, response.OKWithMessage("email is already verified"))
		return
	}

	if err := h.service.SendVerification(r.Context(), userUID); err != nil {
		switch {
		case errors.Is(err, services.ErrNoEmail):
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("account has no email"))
		case errors.Is(err, services.ErrUserNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to resend verification", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("verification mail queued")
	render.JSON(w, r, response.OKWithMessage("verification email has been sent"))
}
