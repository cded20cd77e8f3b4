package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"github.com/Eliezer-Jr/event-blossom/cmd/middleware"
	"github.com/Eliezer-Jr/event-blossom/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.POST("/events", r.Service.CreateEvent)
	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.GET("/events/:id", r.Service.GetEvent)
	apiGroup.POST("/events/:id/registrations", r.Service.Register)
	apiGroup.POST("/events/:id/reminders", r.Service.SendReminders)

	apiGroup.POST("/registrations/:id/pay", r.Service.RetryPayment)
	apiGroup.POST("/payments/moolre/webhook", r.Service.Webhook)

	apiGroup.GET("/tickets/:code", r.Service.LookupTicket)
	apiGroup.POST("/checkin", r.Service.CheckIn)

	return app
}
