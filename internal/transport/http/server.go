package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	appsvc "mycareerbox/internal/app"
	"mycareerbox/internal/attachment"
	"mycareerbox/internal/bootstrap"
	"mycareerbox/internal/cache"
	rabbitmqClient "mycareerbox/internal/platform/rabbitmq"
	"mycareerbox/internal/repository"
	"mycareerbox/internal/transport/http/handler"
	"mycareerbox/internal/transport/http/middleware"
	"mycareerbox/internal/transport/http/view"
)

// Handlers is everything the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Tracker  *handler.TrackerHandler
	Activity *handler.ActivityHandler
	Health   *handler.HealthHandler
}

func NewRouter(app *bootstrap.App) (*gin.Engine, error) {
	cfg := app.Config

	userRepo := repository.NewUserRepository(app.MySQL)
	recordRepo := repository.NewRecordRepository(app.AWS.DynamoDB, cfg.AWS.Table)
	eventRepo := repository.NewRecordEventRepository(app.MySQL)
	attachments := attachment.NewStore(app.AWS.S3, app.AWS.Presign, cfg.AWS.Bucket)
	publisher := rabbitmqClient.NewEventPublisher(app.MQConn, cfg.RabbitMQ.RecordEventQueue)
	sessions := cache.NewSessionCache(app.Redis, cfg.Redis.SessionTTL())

	authService := appsvc.NewAuthService(userRepo)
	trackerService := appsvc.NewTrackerService(recordRepo, attachments, publisher, cfg.PresignTTL())

	cookie := handler.SessionCookie{
		Name:   cfg.Auth.CookieName,
		Secret: cfg.Auth.JWTSecret,
		TTL:    cfg.SessionTTL(),
		Secure: cfg.Auth.CookieSecure,
	}

	h := Handlers{
		Auth:     handler.NewAuthHandler(authService, trackerService, sessions, cookie),
		Tracker:  handler.NewTrackerHandler(trackerService, sessions),
		Activity: handler.NewActivityHandler(eventRepo),
		Health: handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, map[string]handler.HealthCheck{
			"mysql": func(ctx context.Context) error {
				sqlDB, err := app.MySQL.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				return app.Redis.Ping(ctx).Err()
			},
			"rabbitmq": func(context.Context) error {
				if app.MQConn == nil || app.MQConn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		}),
	}

	gin.SetMode(cfg.App.GinMode)
	return NewEngine(h, sessions, cookie)
}

// NewEngine mounts the routes on a fresh gin engine.
func NewEngine(h Handlers, sessions middleware.SessionStore, cookie handler.SessionCookie) (*gin.Engine, error) {
	tmpl, err := view.Load()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.SetHTMLTemplate(tmpl)
	router.MaxMultipartMemory = 12 << 20

	router.GET("/healthz", h.Health.Check)

	site := router.Group("/")
	site.Use(middleware.LoadSession(sessions, cookie.Secret, cookie.Name))
	site.GET("/", h.Auth.Home)
	site.GET("/login", h.Auth.LoginPage)
	site.POST("/login", h.Auth.Login)
	site.POST("/signup", h.Auth.SignUp)
	site.POST("/logout", h.Auth.Logout)

	tracker := site.Group("/tracker")
	tracker.Use(middleware.RequireSignIn())
	tracker.GET("", h.Tracker.View)
	tracker.POST("/records", h.Tracker.Submit)
	tracker.POST("/records/:id/status", h.Tracker.UpdateStatus)
	tracker.POST("/records/:id/delete", h.Tracker.Delete)
	tracker.POST("/export", h.Tracker.Export)

	v1 := site.Group("/api/v1")
	v1.Use(middleware.RequireSignInAPI())
	v1.GET("/activity", h.Activity.List)

	return router, nil
}
