package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"campusconnect/auth"
	"campusconnect/db"
	"campusconnect/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	DB     *db.DB
	Tokens *auth.Issuer
	Logger *slog.Logger

	// FrontendURL is the only origin allowed by CORS. Empty allows none.
	FrontendURL string

	RequestTimeout    time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// ServiceName labels request spans. Empty disables request tracing.
	ServiceName string
}

// NewRouter builds the gin engine with the full middleware chain and every route.
func NewRouter(cfg RouterConfig) *gin.Engine {
	useJSONFieldNames()

	h := &Handlers{DB: cfg.DB, Tokens: cfg.Tokens, Logger: cfg.Logger}

	r := gin.New()
	r.HandleMethodNotAllowed = false
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.ServiceName != "" {
		r.Use(middleware.Tracing(cfg.ServiceName))
	}
	if cfg.FrontendURL != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{cfg.FrontendURL},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.GET("/health", h.Health)
	r.NoRoute(NotFound)

	authn := middleware.Auth(cfg.Tokens, cfg.DB)
	admin := middleware.RequireAdmin()

	api := r.Group("/api")
	{
		a := api.Group("/auth")
		a.POST("/signup", h.Signup)
		a.POST("/login", h.Login)

		profile := api.Group("/profile", authn)
		profile.GET("", h.Profile)
		profile.PUT("", h.UpdateProfile)

		events := api.Group("/events", authn)
		events.GET("", h.ListEvents)
		events.GET("/:id", h.GetEvent)
		events.POST("", admin, h.CreateEvent)
		events.PUT("/:id", admin, h.UpdateEvent)
		events.DELETE("/:id", admin, h.DeleteEvent)
		events.POST("/:id/register", h.Register)
		events.GET("/:id/registrations", admin, h.EventRegistrationList)

		regs := api.Group("/registrations", authn)
		regs.GET("/my", h.MyRegistrations)
		regs.GET("/verify/:token", admin, h.VerifyRegistration)
		regs.GET("/:id", h.GetRegistration)
		regs.DELETE("/:id", h.CancelRegistration)

		adm := api.Group("/admin", authn, admin)
		adm.GET("/stats", h.Stats)
		adm.GET("/events/:id/registrations", h.AdminEventRegistrations)
		adm.GET("/users", h.ListUsers)
		adm.PATCH("/users/:id/role", h.UpdateUserRole)
	}

	return r
}
