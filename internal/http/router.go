// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transfer/internal/http/handlers"
	"transfer/internal/http/middleware"
	"transfer/internal/logger"
)

// EventStream is the subscription side of the event broadcaster.
type EventStream = handlers.EventStream

func NewRouter(deps ServerDeps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	locationHandler := handlers.NewLocationHandler(deps.Location)
	eventsHandler := handlers.NewEventsHandler(deps.Rides, deps.Events, log)

	rideHandler := handlers.NewRideHandler(deps.Rides)
	r.POST("/api/rides", rideHandler.Create)

	clientHandler := handlers.NewClientHandler(deps.Rides, locationHandler, eventsHandler)
	client := r.Group("/api/client/ride", middleware.AccessCode(deps.Rides))
	client.GET("", clientHandler.Get)
	client.POST("/cancel", clientHandler.Cancel)
	client.GET("/location", clientHandler.Location)
	client.GET("/eta", clientHandler.ETA)
	client.GET("/events", clientHandler.Events)

	adminHandler := handlers.NewAdminHandler(deps.Rides, deps.Pool, locationHandler, eventsHandler)
	admin := r.Group("/api/admin/rides", middleware.Auth(deps.Verifier), middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("", adminHandler.List)
	admin.GET("/:id", adminHandler.Get)
	admin.GET("/:id/history", adminHandler.History)
	admin.GET("/:id/drivers", adminHandler.Drivers)
	admin.POST("/:id/assign", adminHandler.Assign)
	admin.POST("/:id/start", adminHandler.Start)
	admin.POST("/:id/complete", adminHandler.Complete)
	admin.POST("/:id/cancel", adminHandler.Cancel)
	admin.GET("/:id/location", adminHandler.Location)
	admin.GET("/:id/trail", adminHandler.Trail)
	admin.GET("/:id/eta", adminHandler.ETA)
	admin.GET("/:id/events", adminHandler.Events)

	driverHandler := handlers.NewDriverHandler(deps.Rides, deps.Pool, locationHandler, eventsHandler)
	driver := r.Group("/api/driver/rides", middleware.Auth(deps.Verifier), middleware.RequireRole(middleware.RoleDriver))
	driver.GET("/available", driverHandler.Available)
	driver.GET("/:id", driverHandler.Get)
	driver.POST("/:id/accept", driverHandler.Accept)
	driver.POST("/:id/self-accept", driverHandler.SelfAccept)
	driver.POST("/:id/refuse", driverHandler.Refuse)
	driver.POST("/:id/depart", driverHandler.Depart)
	driver.POST("/:id/pickup", driverHandler.PickUp)
	driver.POST("/:id/start", driverHandler.Start)
	driver.POST("/:id/complete", driverHandler.Complete)
	driver.POST("/:id/cancel", driverHandler.Cancel)
	driver.PUT("/:id/location", driverHandler.UpdateLocation)
	driver.GET("/:id/location", driverHandler.Location)
	driver.GET("/:id/eta", driverHandler.ETA)
	driver.GET("/:id/events", driverHandler.Events)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
