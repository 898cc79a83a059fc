package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/maheshrc27/postpilot/internal/api/handlers"
	"github.com/maheshrc27/postpilot/internal/api/middleware"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/service"
)

type Deps struct {
	Lifecycle service.LifecycleService
	Publisher service.PublishService
	History   repository.PostingHistoryRepository
	APIKey    string
	SecretKey string
	Log       logging.Logger
}

// NewApp builds the HTTP command surface. Every route under /api needs auth.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 30 * time.Minute, // a publish run polls media containers
		BodyLimit:    1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				d.Log.WithError(err).Error("request failed")
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + middleware.APIKeyHeader,
		MaxAge:       3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	authMiddleware := middleware.NewAuthMiddleware(d.APIKey, d.SecretKey, d.Log)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(d.Lifecycle, d.History, d.Log)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/approve", post.ApproveBatch)
	api.Get("/posts/:uid", post.GetPost)
	api.Put("/posts/:uid", post.EditPost)
	api.Delete("/posts/:uid", post.RemovePost)
	api.Post("/posts/:uid/approve", post.ApprovePost)
	api.Post("/posts/:uid/reject", post.RejectPost)
	api.Get("/posts/:uid/history", post.PostHistory)

	publish := handlers.NewPublishHandler(d.Publisher, d.Log)
	api.Post("/publish", publish.PublishDue)
	api.Post("/posts/:uid/publish", publish.PublishOne)

	return app
}
