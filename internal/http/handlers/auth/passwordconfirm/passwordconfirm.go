// Package passwordconfirm реализует HTTP-обработчик предварительной проверки
// токена восстановления пароля без его использования.
package passwordconfirm

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/credential-engine/internal/http/response"
	"github.com/magabrotheeeer/credential-engine/internal/lib/sl"
	services "github.com/magabrotheeeer/credential-engine/internal/services/auth"
)

// Request — структура входных данных для проверки токена восстановления.
type Request struct {
	Token string `json:"token" validate:"required"`
}

// Handler обрабатывает HTTP-запросы проверки токена восстановления.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики проверки токена восстановления.
type Service interface {
	ValidateResetToken(tokenStr string) error
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
// @Summary Проверка токена восстановления
// @Description Проверяет подпись, срок действия и назначение токена восстановления, не меняя пароль.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен восстановления"
// @Success 200 {object} response.Response "Токен действителен"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или недействительный токен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/password/confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.passwordconfirm"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	if err := h.service.ValidateResetToken(req.Token); err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid token"))
			return
		}
		log.Error("reset token check failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithMessage("reset token is valid"))
}
