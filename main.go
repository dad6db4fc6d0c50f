package main

import (
	"log"
	"os"
	"time"

	"educore-backend/billing"
	"educore-backend/cache"
	"educore-backend/database"
	"educore-backend/locks"
	"educore-backend/middlewares"
	"educore-backend/routes"
	"educore-backend/services"
	"educore-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	return utils.ParseIntDefault(os.Getenv(key), def)
}

// logNotifier stands in for the external email/SMS/WhatsApp senders when no
// delivery gateway is configured.
type logNotifier struct{}

func (logNotifier) Send(accountID uint, channel, notifType, content string) error {
	log.Printf("[notify] account=%d channel=%s type=%s", accountID, channel, notifType)
	return nil
}

func main() {
	// ---- Database
	database.Connect()
	database.AutoMigrate()

	// ---- Shared in-memory state: lock table, idempotency cache, throttle
	// table. All injected; a restart forgets them, the upsert layer is the
	// durable safety net.
	cleanup := time.Duration(envInt("CLEANUP_INTERVAL_SECONDS", 60)) * time.Second
	idemTTL := time.Duration(envInt("IDEMPOTENCY_TTL_SECONDS", 120)) * time.Second

	lockMgr := locks.NewManager()
	lockMgr.StartSweeper(cleanup)
	defer lockMgr.Stop()

	idem := cache.NewIdempotency(lockMgr, idemTTL)
	idem.StartSweeper(cleanup)
	defer idem.Stop()

	throttle := cache.NewThrottle()
	throttle.StartSweeper(cleanup)
	defer throttle.Stop()

	// ---- Services
	store := database.NewStore(database.DB)
	dedup := services.NewAntiDuplication(store, lockMgr, throttle, logNotifier{})
	audit := services.NewDuplicationAudit(store)
	subs := services.NewSubscriptionManager(store, billing.NewSandbox(), lockMgr, dedup)

	// Hourly sweep, daily reminders, weekly report.
	subs.StartJobs(services.JobIntervals{})
	defer subs.StopJobs()

	// ---- Limits (configurable via env)
	bodyLimitBytes := envInt("BODY_LIMIT_BYTES", 0)
	if bodyLimitBytes <= 0 {
		bodyLimitBytes = envInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    bodyLimitBytes,
	})

	// ---- CORS
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))

	// ---- Global rate limiter (applies to all routes; tune via env)
	rlMax := envInt("RATE_LIMIT_MAX", 60)
	rlWindow := time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	app.Use(limiter.New(limiter.Config{
		Max:        rlMax,
		Expiration: rlWindow,
	}))

	// ---- Routes
	routes.Register(app, routes.Deps{
		Idempotency:   idem,
		Dedup:         dedup,
		Audit:         audit,
		Subscriptions: subs,
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	})

	// ---- Start
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("API server listening on port", port)
	if err := app.Listen(":" + port); err != nil {
		panic(err)
	}
}
