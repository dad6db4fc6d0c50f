package routes

import (
	"github.com/gofiber/fiber/v2"

	"educore-backend/cache"
	"educore-backend/controllers"
	"educore-backend/middlewares"
	"educore-backend/services"
)

// Deps carries the constructed services the routes close over.
type Deps struct {
	Idempotency   *cache.Idempotency
	Dedup         *services.AntiDuplication
	Audit         *services.DuplicationAudit
	Subscriptions *services.SubscriptionManager
	WebhookSecret string
}

// Register wires all HTTP routes.
func Register(app *fiber.App, deps Deps) {
	api := app.Group("/api")

	// Billing provider webhook: authenticated by signature, not by JWT,
	// and deliberately outside the idempotency middleware (the provider
	// retries with the same event payload; HandleWebhook is idempotent).
	api.Post("/webhooks/billing",
		middlewares.VerifyWebhookSignature(deps.WebhookSecret),
		controllers.BillingWebhook(deps.Subscriptions))

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Idempotency guard FIRST, so replays short-circuit before handlers
	protected.Use(middlewares.Idempotency(deps.Idempotency))

	// Attendance & grades
	protected.Post("/attendance", controllers.RecordAttendance(deps.Dedup))
	protected.Post("/grades", controllers.RecordGrade(deps.Dedup))

	// Enrollment & classes
	protected.Post("/enrollments", controllers.EnrollStudent(deps.Dedup))
	protected.Patch("/students/:id", controllers.UpdateStudent(deps.Dedup))
	protected.Post("/classes", controllers.CreateClass(deps.Dedup))

	// Payments & notifications
	protected.Post("/payments", controllers.RecordPayment(deps.Dedup))
	protected.Post("/notifications", controllers.SendNotification(deps.Dedup))

	// Subscriptions
	protected.Post("/subscriptions", controllers.Subscribe(deps.Subscriptions))
	protected.Post("/subscriptions/confirm", controllers.ConfirmPayment(deps.Subscriptions))
	protected.Delete("/subscriptions/:accountId", controllers.CancelSubscription(deps.Subscriptions))
	protected.Get("/subscriptions/:accountId", controllers.SubscriptionStatus(deps.Subscriptions))
	protected.Get("/subscriptions-report", controllers.SubscriptionReport(deps.Subscriptions))

	// Duplication audit (admin)
	protected.Post("/admin/duplications/analysis", controllers.RunDuplicationAnalysis(deps.Audit))
	protected.Post("/admin/duplications/autofix", controllers.AutoFixDuplications(deps.Audit))
	protected.Get("/admin/duplications/report", controllers.DuplicationReport(deps.Audit))
}
