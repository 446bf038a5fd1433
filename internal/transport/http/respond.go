package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// errorResponse — тело ответа с ошибкой.
type errorResponse struct {
	Error string `json:"error"`
}

// respondWithJSON отправляет JSON-ответ с кодом code.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("не удалось сериализовать ответ")
		code, body = http.StatusInternalServerError, []byte(`{"error":"failed to encode response"}`)
	}
	writeRaw(w, code, body)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.WithError(err).Warn("не удалось записать ответ")
	}
}

func respondWithError(w http.ResponseWriter, err error) {
	code, body := encodeError(err)
	writeRaw(w, code, body)
}

// encodeError переводит ошибку в код и тело ответа. Внутренние ошибки наружу не раскрываются.
func encodeError(err error) (int, []byte) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal server error"
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		message = formatValidationErrors(validationErrs)
	}

	body, marshalErr := json.Marshal(errorResponse{Error: message})
	if marshalErr != nil {
		return http.StatusInternalServerError, []byte(`{"error":"internal server error"}`)
	}
	return code, body
}

// statusFor сопоставляет класс доменной ошибки HTTP-статусу.
func statusFor(err error) int {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusBadRequest
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict, domain.KindInsufficientStock, domain.KindInvalidTransition, domain.KindUnavailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Namespace()+" is required")
		case "min", "gte":
			parts = append(parts, fe.Namespace()+" must be at least "+fe.Param())
		case "max", "lte":
			parts = append(parts, fe.Namespace()+" must be at most "+fe.Param())
		default:
			parts = append(parts, fe.Namespace()+" failed on "+fe.Tag())
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
