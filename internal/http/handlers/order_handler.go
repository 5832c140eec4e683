// README: Order handlers: create, read, list, lifecycle transitions, payment and admin overrides.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"courier/internal/modules/order"
	"courier/internal/modules/payment"
	"courier/internal/modules/pricing"
	"courier/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	CustomerID            string          `json:"customer_id"`
	QuoteID               string          `json:"quote_id"`
	PickupAddress         string          `json:"pickup_address"`
	DropoffAddress        string          `json:"dropoff_address"`
	DistanceKm            float64         `json:"distance_km" binding:"gte=0"`
	EtaMinutes            int             `json:"eta_minutes" binding:"gte=0"`
	Package               pricing.Package `json:"package"`
	PaymentResponsibility string          `json:"payment_responsibility" binding:"required"`
	PaymentMethod         string          `json:"payment_method" binding:"required"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		Actor:                 caller(c),
		CustomerID:            types.ID(strings.TrimSpace(req.CustomerID)),
		QuoteID:               types.ID(strings.TrimSpace(req.QuoteID)),
		PickupAddress:         req.PickupAddress,
		DropoffAddress:        req.DropoffAddress,
		DistanceKm:            req.DistanceKm,
		EtaMinutes:            req.EtaMinutes,
		Package:               req.Package,
		PaymentResponsibility: payment.Responsibility(req.PaymentResponsibility),
		PaymentMethod:         payment.Method(req.PaymentMethod),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), id, caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Events(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.order.Events(c.Request.Context(), id, caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}

// List accepts ?scope=&status=a,b&q=&sort=&limit=&offset=.
func (h *OrderHandler) List(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	var statuses []order.Status
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, ok := order.ParseStatus(part)
			if !ok {
				writeError(c, http.StatusBadRequest, "validation", "unknown status "+part)
				return
			}
			statuses = append(statuses, s)
		}
	}
	orders, err := h.order.List(c.Request.Context(), order.ListQuery{
		Actor:    caller(c),
		Scope:    order.Scope(strings.ToLower(c.Query("scope"))),
		Statuses: statuses,
		Search:   c.Query("q"),
		Sort:     order.Sort(strings.ToLower(c.Query("sort"))),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor := caller(c)
	o, err := h.order.Accept(c.Request.Context(), order.AcceptCommand{OrderID: id, DriverID: actor.ID, Actor: actor})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type statusReq struct {
	Event           string `json:"event" binding:"required"`
	ExpectedVersion *int   `json:"expected_version"`
	PhotoRef        string `json:"photo_ref"`
	Notes           string `json:"notes"`
	Reason          string `json:"reason"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusReq
	if !bind(c, &req) {
		return
	}
	ev, ok := order.ParseEvent(req.Event)
	if !ok {
		writeError(c, http.StatusBadRequest, "validation", "unknown event "+req.Event)
		return
	}
	o, err := h.order.UpdateStatus(c.Request.Context(), order.UpdateStatusCommand{
		OrderID:         id,
		Event:           ev,
		Actor:           caller(c),
		ExpectedVersion: req.ExpectedVersion,
		PhotoRef:        req.PhotoRef,
		Notes:           req.Notes,
		Reason:          req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type cancelReq struct {
	Reason          string `json:"reason"`
	ExpectedVersion *int   `json:"expected_version"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:         id,
		Actor:           caller(c),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type collectReq struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

func (h *OrderHandler) CollectPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req collectReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.CollectPayment(c.Request.Context(), order.CollectPaymentCommand{
		OrderID: id,
		Actor:   caller(c),
		Amount:  *req.Amount,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type paymentReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) PaymentFailed(c *gin.Context) {
	h.paymentAction(c, h.order.MarkPaymentFailed)
}

func (h *OrderHandler) Refund(c *gin.Context) {
	h.paymentAction(c, h.order.RefundPayment)
}

func (h *OrderHandler) paymentAction(c *gin.Context, fn func(ctx context.Context, cmd order.PaymentCommand) (*order.Order, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req paymentReq
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	o, err := fn(c.Request.Context(), order.PaymentCommand{OrderID: id, Actor: caller(c), Reason: req.Reason})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type assignReq struct {
	DriverID        string `json:"driver_id" binding:"required"`
	ExpectedVersion *int   `json:"expected_version"`
}

func (h *OrderHandler) AdminAssign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req assignReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.AdminAssign(c.Request.Context(), order.AdminAssignCommand{
		OrderID:         id,
		DriverID:        types.ID(strings.TrimSpace(req.DriverID)),
		Actor:           caller(c),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type forceReq struct {
	Status          string `json:"status" binding:"required"`
	Reason          string `json:"reason"`
	ExpectedVersion *int   `json:"expected_version"`
}

func (h *OrderHandler) Force(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req forceReq
	if !bind(c, &req) {
		return
	}
	status, ok := order.ParseStatus(req.Status)
	if !ok {
		writeError(c, http.StatusBadRequest, "validation", "unknown status "+req.Status)
		return
	}
	o, err := h.order.ForceStatus(c.Request.Context(), order.ForceCommand{
		OrderID:         id,
		Actor:           caller(c),
		Status:          status,
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
