// README: User handlers: signup, profile, invite redemption.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/modules/user"
)

type UserHandler struct {
	users *user.Service
}

func NewUserHandler(svc *user.Service) *UserHandler {
	return &UserHandler{users: svc}
}

type registerReq struct {
	FullName   string `json:"full_name" binding:"required,max=120"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone" binding:"required,caphone"`
	InviteCode string `json:"invite_code"`
}

type registerResp struct {
	User        *user.User `json:"user"`
	InviteError string     `json:"invite_error,omitempty"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerReq
	if !bind(c, &req) {
		return
	}
	res, err := h.users.Register(c.Request.Context(), user.RegisterCommand{
		UID:        caller(c).ID,
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      req.Phone,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	resp := registerResp{User: res.User}
	if res.InviteError != nil {
		resp.InviteError = res.InviteError.Error()
	}
	writeJSON(c, http.StatusCreated, resp)
}

func (h *UserHandler) Me(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), caller(c).ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

type codeReq struct {
	Code string `json:"code" binding:"required"`
}

func (h *UserHandler) RedeemInvite(c *gin.Context) {
	var req codeReq
	if !bind(c, &req) {
		return
	}
	u, err := h.users.RedeemInvite(c.Request.Context(), caller(c).ID, req.Code)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}
