// README: API gateway; registers gin routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"courier/internal/http/handlers"
	"courier/internal/http/middleware"
	"courier/internal/infra"
	"courier/internal/modules/invite"
	"courier/internal/modules/order"
	"courier/internal/modules/pricing"
	"courier/internal/modules/user"
)

type ServerDeps struct {
	Verifier infra.TokenVerifier
	Order    *order.Service
	User     *user.Service
	Invite   *invite.Service
	Pricing  *pricing.Service
	// Places is optional.
	Places handlers.PlaceSearcher
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = user.RegisterValidators(v)
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	invites := handlers.NewInviteHandler(s.deps.Invite, s.deps.User)
	r.POST("/api/invites/validate", invites.Validate)

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))

	users := handlers.NewUserHandler(s.deps.User)
	api.POST("/users/register", users.Register)
	api.GET("/users/me", users.Me)
	api.POST("/users/me/invite", users.RedeemInvite)

	quotes := handlers.NewQuoteHandler(s.deps.Pricing, s.deps.Places)
	api.POST("/quotes", quotes.Quote)
	api.GET("/places/search", quotes.SearchPlaces)

	orders := handlers.NewOrderHandler(s.deps.Order)
	api.POST("/orders", orders.Create)
	api.GET("/orders", orders.List)
	api.GET("/orders/:id", orders.Get)
	api.GET("/orders/:id/events", orders.Events)
	api.POST("/orders/:id/accept", orders.Accept)
	api.POST("/orders/:id/status", orders.UpdateStatus)
	api.POST("/orders/:id/cancel", orders.Cancel)
	api.POST("/orders/:id/payment/collect", orders.CollectPayment)
	api.POST("/orders/:id/payment/failed", orders.PaymentFailed)

	admin := api.Group("/admin")
	admin.POST("/orders/:id/assign", orders.AdminAssign)
	admin.POST("/orders/:id/force", orders.Force)
	admin.POST("/orders/:id/payment/refund", orders.Refund)
	admin.POST("/invites", invites.Create)
	admin.GET("/invites", invites.List)
	admin.POST("/invites/:id/deactivate", invites.Deactivate)

	return r
}
