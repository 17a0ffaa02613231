// Package deleteaccount реализует HTTP-обработчик удаления учетной записи.
//
// Операция подтверждается текущим паролем; вместе с учетной записью
// удаляются все сессии пользователя.
package deleteaccount

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/credential-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credential-engine/internal/http/response"
	"github.com/magabrotheeeer/credential-engine/internal/lib/sl"
	services "github.com/magabrotheeeer/credential-engine/internal/services/auth"
)

// Request — структура входных данных для удаления учетной записи.
type Request struct {
	CurrentPassword string `json:"current_password" validate:"required"`
}

// Handler обрабатывает HTTP-запросы удаления учетной записи.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики удаления учетной записи.
type Service interface {
	DeleteAccount(ctx context.Context, userUID, rawPassword string) error
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Удаление учетной записи
// @Description Удаляет учетную запись текущего пользователя и все его сессии. Требует текущий пароль.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Текущий пароль"
// @Success 200 {object} response.Response "Учетная запись удалена"
// @Failure 401 {object} response.ErrorResponse "Недействительный access-токен"
// @Failure 403 {object} response.ErrorResponse "Неверный пароль"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/me [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.deleteaccount"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userUID, req.CurrentPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPassword):
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("invalid password"))
		case errors.Is(err, services.ErrUserNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("account deletion failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("account deleted")
	render.JSON(w, r, response.OKWithMessage("account deleted"))
}
