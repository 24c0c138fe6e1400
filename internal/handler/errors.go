package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/middleware"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// actorFrom builds the caller identity placed in the context by the auth middleware
func actorFrom(c *gin.Context) domain.Actor {
	userID, _ := middleware.GetUserID(c)
	switch middleware.GetRole(c) {
	case middleware.RoleAdmin:
		return domain.Actor{Role: domain.RoleAdmin, UserID: userID, Email: middleware.GetEmail(c)}
	case middleware.RoleHost:
		return domain.Actor{Role: domain.RoleHost, UserID: userID, Email: middleware.GetEmail(c)}
	default:
		return domain.Guest()
	}
}

// bindError reports a malformed or incomplete request body
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]domain.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, domain.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"})
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", fields)
		return
	}
	response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
}

// fail marks the span failed and writes the error response
func fail(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	handleError(c, err)
}

// handleError maps service errors to HTTP responses
func handleError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", verr.Fields)
	case errors.Is(err, domain.ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(c, err.Error())
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrTerminalState):
		response.Conflict(c, "TERMINAL_STATE", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Conflict(c, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		response.Conflict(c, "VERSION_CONFLICT", domain.ErrVersionConflict.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		response.Conflict(c, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, domain.ErrDuplicateRequest):
		// nothing new was created, the existing request stands
		response.SuccessWithMeta(c, nil, response.Meta{Message: domain.ErrDuplicateRequest.Error()})
	case errors.Is(err, domain.ErrUploadsInactive):
		response.Forbidden(c, domain.ErrUploadsInactive.Error())
	case errors.Is(err, domain.ErrGalleryLocked):
		response.Error(c, http.StatusForbidden, "GALLERY_LOCKED", domain.ErrGalleryLocked.Error(), nil)
	case errors.Is(err, service.ErrBlobTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", service.ErrBlobTooLarge.Error(), nil)
	case errors.Is(err, service.ErrCalendarSync):
		response.Error(c, http.StatusBadGateway, "CALENDAR_SYNC_FAILED", err.Error(), nil)
	case errors.Is(err, domain.ErrStoreUnavailable):
		response.ServiceUnavailable(c, "the service is temporarily unavailable, please retry")
		_ = c.Error(err)
	default:
		response.InternalError(c, err)
	}
}
