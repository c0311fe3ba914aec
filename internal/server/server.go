package server

import (
	"context"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/alert"
	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/cascade"
	"github.com/apmanager001/tripmaps-sub000/internal/config"
	"github.com/apmanager001/tripmaps-sub000/internal/db"
	"github.com/apmanager001/tripmaps-sub000/internal/logging"
	"github.com/apmanager001/tripmaps-sub000/internal/moderation"
	"github.com/apmanager001/tripmaps-sub000/internal/notify"
	"github.com/apmanager001/tripmaps-sub000/internal/objectstore"
	"github.com/apmanager001/tripmaps-sub000/internal/photo"
	"github.com/apmanager001/tripmaps-sub000/internal/poi"
	"github.com/apmanager001/tripmaps-sub000/internal/social"
	"github.com/apmanager001/tripmaps-sub000/internal/stream"
	"github.com/apmanager001/tripmaps-sub000/internal/tag"
	"github.com/apmanager001/tripmaps-sub000/internal/tripmap"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.DB
	Redis  *redis.Client
	Store  objectstore.Store
	Stream *stream.Hub
	Log    *logrus.Logger
}

// NewServer builds the fiber app and wires every service. store may be nil,
// in which case photo uploads fail and cascade purges are skipped.
func NewServer(cfg config.Config, pool db.DB, redisClient *redis.Client, store objectstore.Store, log *logrus.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.Handler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		BodyLimit:    photo.MaxFileSize + 1<<20,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.PublicURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(dbTimeout(cfg.DBTimeout))

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Store:  store,
		Stream: stream.NewHub(redisClient, log),
		Log:    log,
	}

	registerRoutes(s)
	return s
}

// Close stops the stream hub's Redis subscription.
func (s *Server) Close() {
	s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	optionalJWT := auth.OptionalJWT(s.Cfg.JWTSecret)

	purger := cascade.NewPurger(s.Store, s.Log, s.Cfg.CascadeConcurrency)
	alerts := alert.NewService(s.DB, s.notifier(), s.Log)
	photos := photo.NewService(s.DB, s.Store, purger, s.Cfg.PresignTTL, s.Log)
	pois := poi.NewService(s.DB, photos, purger)

	auth.RegisterRoutes(s.App.Group("/auth"), s.App, auth.NewService(s.Cfg.JWTSecret, s.DB, purger), jwtMiddleware)
	tag.RegisterRoutes(s.App.Group("/tags"), tag.NewService(s.DB))
	poi.RegisterRoutes(s.App, pois, jwtMiddleware, optionalJWT)
	photo.RegisterRoutes(s.App, photos, jwtMiddleware, optionalJWT)
	tripmap.RegisterRoutes(s.App, tripmap.NewService(s.DB, pois, purger, alerts, s.Log), jwtMiddleware, optionalJWT)
	social.RegisterRoutes(s.App, social.NewService(s.DB, alerts, s.Log), jwtMiddleware, optionalJWT)
	moderation.RegisterRoutes(s.App, moderation.NewService(s.DB), jwtMiddleware)
	alert.RegisterRoutes(s.App.Group("/alerts"), alerts, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}

// notifier delivers alerts to the live stream and, when SendGrid is
// configured, by email.
func (s *Server) notifier() alert.Notifier {
	multi := notify.Multi{notify.NewStream(s.Stream)}
	if s.Cfg.SendGridAPIKey != "" {
		multi = append(multi, notify.NewEmail(s.Cfg.SendGridAPIKey, s.Cfg.AlertFromEmail, s.Cfg.PublicURL))
	}
	return multi
}

// dbTimeout bounds the request context used by services. Websocket upgrades
// are long lived and skip it.
func dbTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 || websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
