package handlers

import (
	"net/http"

	"mothstation/internal/logger"
	"mothstation/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	metrics  http.Handler
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies. metrics may be
// nil, in which case /metrics is not served; a nil log discards output.
func NewHandler(services *service.Service, metrics http.Handler, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{services: services, metrics: metrics, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Live status stream on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

// registerAPIRoutes: the status page is public like the station display,
// everything that changes the station needs an operator token.
func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	public := r.Group("/api/v1")
	{
		public.GET("/status", h.getStatus)
		public.GET("/status/image", h.getStatusImage)
		public.GET("/weather", h.getWeather)
	}

	api := r.Group("/api/v1", h.requireOperator)
	{
		h.registerActionRoutes(api)
		h.registerConfigRoutes(api)
		api.GET("/events", h.getEvents)
		api.POST("/operators", h.addOperator)
	}
}

func (h *Handler) registerActionRoutes(api *gin.RouterGroup) {
	actions := api.Group("/actions")
	{
		actions.POST("/capture", h.capture)
		actions.POST("/poll", h.poll)
		actions.POST("/reconnect", h.reconnectCamera)
		// Body example: {"state":"off"}
		actions.POST("/relay", h.setRelay)
	}
}

func (h *Handler) registerConfigRoutes(api *gin.RouterGroup) {
	cfg := api.Group("/config")
	{
		cfg.GET("", h.getConfig)
		cfg.PUT("", h.updateConfig)
	}
}
