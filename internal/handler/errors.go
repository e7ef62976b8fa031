package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/auth"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/lifecycle"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/rbac"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/outbox"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error       string             `json:"error"`
	Code        string             `json:"code"`
	Fields      []model.FieldError `json:"fields,omitempty"`
	MilestoneID string             `json:"milestone_id,omitempty"`
}

// statusOf maps a domain error to its HTTP status and code.
func statusOf(err error) (int, errorResponse) {
	var (
		verr     *model.ValidationError
		nf       *model.NotFoundError
		denied   *rbac.AuthorizationError
		invalid  *lifecycle.InvalidTransitionError
		precond  *lifecycle.PreconditionError
		conflict *repository.ConflictError
	)
	resp := errorResponse{Error: err.Error()}
	switch {
	case errors.As(err, &verr):
		resp.Code, resp.Fields = "validation", verr.Fields
		return http.StatusBadRequest, resp
	case errors.Is(err, auth.ErrUnauthenticated):
		resp.Code = "unauthenticated"
		return http.StatusUnauthorized, resp
	case errors.As(err, &denied):
		resp.Code = "forbidden"
		return http.StatusForbidden, resp
	case errors.As(err, &nf), errors.Is(err, outbox.ErrEventNotFound):
		resp.Code = "not_found"
		return http.StatusNotFound, resp
	case errors.As(err, &invalid):
		resp.Code = "invalid_transition"
		return http.StatusConflict, resp
	case errors.As(err, &conflict):
		resp.Code = "conflict"
		return http.StatusConflict, resp
	case errors.As(err, &precond):
		resp.Code, resp.MilestoneID = "precondition_failed", precond.MilestoneID
		return http.StatusUnprocessableEntity, resp
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"}
}

// respondError writes err and logs it; 5xx at Error level, rejections at Info.
func respondError(c *gin.Context, log *zap.Logger, op string, err error) {
	status, resp := statusOf(err)
	l := logger.WithTrace(c.Request.Context(), log)
	if status >= http.StatusInternalServerError {
		l.Error(op+": failed", zap.Error(err))
	} else {
		l.Info(op+": rejected", zap.Int("status", status), zap.String("code", resp.Code), zap.Error(err))
	}
	c.JSON(status, resp)
}

func badRequest(field, msg string) error {
	return model.NewValidationError(nil, model.FieldError{Field: field, Error: msg})
}
