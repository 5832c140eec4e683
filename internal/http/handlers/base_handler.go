// README: Base handler utilities (JSON helpers, caller extraction, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"courier/internal/http/middleware"
	"courier/internal/logger"
	"courier/internal/modules/invite"
	"courier/internal/modules/order"
	"courier/internal/modules/payment"
	"courier/internal/modules/pricing"
	"courier/internal/modules/user"
	"courier/internal/types"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, code, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Code: code})
}

// bind decodes the JSON body and answers 400 on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		resp := errorResponse{Error: "invalid request body", Code: "validation"}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			resp.Details = map[string]any{"fields": fields}
		}
		writeJSON(c, http.StatusBadRequest, resp)
		return false
	}
	return true
}

func caller(c *gin.Context) order.Actor {
	role, _ := types.ParseRole(middleware.CallerRole(c))
	return order.Actor{ID: types.ID(middleware.CallerUID(c)), Role: role}
}

func pathID(c *gin.Context) (types.ID, bool) {
	id, ok := types.ParseID(c.Param("id"))
	if !ok {
		writeError(c, http.StatusBadRequest, "validation", "invalid id")
	}
	return id, ok
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "validation", key+" must be an integer")
		return 0, false
	}
	return n, true
}

// writeServiceError maps domain errors to a status and a stable code.
func writeServiceError(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var terr *order.TransitionError
	var verr *order.ValidationError
	switch {
	case errors.As(err, &terr):
		status, resp.Code = http.StatusConflict, "invalid_transition"
		resp.Details = map[string]any{"from": terr.From, "event": terr.Event, "reason": terr.Reason}
	case errors.As(err, &verr):
		status, resp.Code = http.StatusBadRequest, "validation"
		if verr.Field != "" {
			resp.Details = map[string]any{"field": verr.Field}
		}
	case errors.Is(err, order.ErrNotFound), errors.Is(err, invite.ErrNotFound),
		errors.Is(err, user.ErrNotFound), errors.Is(err, pricing.ErrQuoteNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, order.ErrAlreadyAssigned):
		status, resp.Code = http.StatusConflict, "already_assigned"
	case errors.Is(err, order.ErrOrderNotPayable):
		status, resp.Code = http.StatusConflict, "order_not_payable"
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, payment.ErrPaymentRequired),
		errors.Is(err, payment.ErrBadTransition):
		status, resp.Code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, invite.ErrAlreadyUsed):
		status, resp.Code = http.StatusConflict, "already_used"
	case errors.Is(err, invite.ErrCodeInactive):
		status, resp.Code = http.StatusConflict, "code_inactive"
	case errors.Is(err, order.ErrConflict), errors.Is(err, invite.ErrCodeExists),
		errors.Is(err, user.ErrExists), errors.Is(err, user.ErrRoleChanged):
		status, resp.Code = http.StatusConflict, "conflict"
	case errors.Is(err, order.ErrValidation), errors.Is(err, invite.ErrValidation),
		errors.Is(err, user.ErrValidation), errors.Is(err, pricing.ErrValidation),
		errors.Is(err, payment.ErrValidation):
		status, resp.Code = http.StatusBadRequest, "validation"
	case errors.Is(err, order.ErrForbidden), errors.Is(err, user.ErrNotCustomer):
		status, resp.Code = http.StatusForbidden, "forbidden"
	case errors.Is(err, pricing.ErrRouteUnavailable):
		status, resp.Code = http.StatusServiceUnavailable, "unavailable"
	default:
		logger.Log.Error("unhandled service error", zap.String("path", c.FullPath()), zap.Error(err))
		resp.Error, resp.Code = "internal error", "internal"
	}
	writeJSON(c, status, resp)
}
