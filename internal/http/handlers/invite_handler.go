// README: Invite code handlers: public validation and admin management.
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/modules/invite"
	"courier/internal/modules/order"
	"courier/internal/types"
)

// AdminCheck confirms the caller's stored role.
type AdminCheck interface {
	Role(ctx context.Context, id types.ID) (types.Role, bool, error)
}

type InviteHandler struct {
	invites *invite.Service
	users   AdminCheck
}

func NewInviteHandler(svc *invite.Service, users AdminCheck) *InviteHandler {
	return &InviteHandler{invites: svc, users: users}
}

func (h *InviteHandler) Validate(c *gin.Context) {
	var req codeReq
	if !bind(c, &req) {
		return
	}
	valid, err := h.invites.Validate(c.Request.Context(), req.Code)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"valid": valid})
}

type createInviteReq struct {
	Code  string `json:"code" binding:"required"`
	Notes string `json:"notes" binding:"max=500"`
}

func (h *InviteHandler) Create(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var req createInviteReq
	if !bind(c, &req) {
		return
	}
	code, err := h.invites.Create(c.Request.Context(), req.Code, caller(c).ID, req.Notes)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, code)
}

func (h *InviteHandler) List(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	codes, err := h.invites.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"codes": codes})
}

func (h *InviteHandler) Deactivate(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.invites.Deactivate(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"id": id, "is_active": false})
}

func (h *InviteHandler) requireAdmin(c *gin.Context) bool {
	uid := caller(c).ID
	role, found, err := h.users.Role(c.Request.Context(), uid)
	if err != nil {
		writeServiceError(c, err)
		return false
	}
	if !found || role != types.RoleAdmin {
		writeServiceError(c, fmt.Errorf("%w: admin only", order.ErrForbidden))
		return false
	}
	return true
}
