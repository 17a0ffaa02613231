// Package register реализует HTTP-обработчик регистрации пользователей.
//
// В нём определяется структура Request для входных данных, выполняется декодирование JSON,
// проверка и валидация полей, а также делегирование операции регистрации сервису.
// При успешной регистрации пользователь сразу получает пару токенов.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/credential-engine/internal/http/response"
	"github.com/magabrotheeeer/credential-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credential-engine/internal/models"
	services "github.com/magabrotheeeer/credential-engine/internal/services/auth"
)

// Request — структура входных данных для регистрации.
//
// Login и Email опциональны, но хотя бы одно из полей должно быть заполнено.
type Request struct {
	Login    string `json:"login" validate:"omitempty,min=3,max=50"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=6"`
}

var loginPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Handler обрабатывает HTTP-запросы регистрации.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики регистрации.
type Service interface {
	Register(ctx context.Context, login, email, password, clientLabel string) (*models.TokenPair, error)
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
// @Summary Регистрация пользователя
// @Description Создает учетную запись по login и/или email. Возвращает пару токенов.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные новой учетной записи"
// @Success 200 {object} response.Response "Успешная регистрация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или отсутствуют login и email"
// @Failure 409 {object} response.ErrorResponse "Login или email уже заняты"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

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
	if req.Login == "" && req.Email == "" {
		log.Error("neither login nor email provided")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("login or email required"))
		return
	}
	if req.Login != "" && !loginPattern.MatchString(req.Login) {
		log.Error("login contains forbidden characters")
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field Login is not a valid"))
		return
	}

	pair, err := h.service.Register(r.Context(), req.Login, req.Email, req.Password, r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLoginTaken):
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("login already taken"))
		case errors.Is(err, services.ErrEmailTaken):
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("email already taken"))
		case errors.Is(err, services.ErrLoginOrEmailRequired):
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("login or email required"))
		default:
			log.Error("registration failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("user registered")
	render.JSON(w, r, response.OKWithData(pair))
}
