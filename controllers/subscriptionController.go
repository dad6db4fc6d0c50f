package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"educore-backend/middlewares"
	"educore-backend/services"
)

type subscribeDTO struct {
	AccountID uint    `json:"account_id" validate:"required"`
	PlanID    string  `json:"plan_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Currency  string  `json:"currency" validate:"required,len=3"`
}

// Subscribe creates a recurring subscription with the billing provider and
// activates it locally.
func Subscribe(mgr *services.SubscriptionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto subscribeDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}
		if err := mgr.Subscribe(dto.AccountID, dto.PlanID, dto.Amount, dto.Currency); err != nil {
			return err
		}
		acc, err := mgr.Status(dto.AccountID)
		if err != nil {
			return err
		}
		return c.JSON(acc)
	}
}

type confirmPaymentDTO struct {
	AccountID     uint    `json:"account_id" validate:"required"`
	PlanID        string  `json:"plan_id" validate:"required"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Currency      string  `json:"currency" validate:"required,len=3"`
}

// ConfirmPayment records a confirmed provider payment (write-once) and
// activates the subscription it paid for. Without a transaction id the
// provider is charged synchronously first. Safe to retry.
func ConfirmPayment(mgr *services.SubscriptionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto confirmPaymentDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}
		payment, err := mgr.ConfirmPayment(dto.AccountID, dto.PlanID, dto.TransactionID, dto.Amount, dto.Currency)
		if err != nil {
			return err
		}
		return c.JSON(payment)
	}
}

// CancelSubscription ends a subscription, confirming with the provider
// first when a provider linkage exists.
func CancelSubscription(mgr *services.SubscriptionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := strconv.ParseUint(c.Params("accountId"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid account id")
		}
		if err := mgr.Cancel(uint(accountID)); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "subscription cancelled"})
	}
}

// SubscriptionStatus returns the local subscription state for an account.
func SubscriptionStatus(mgr *services.SubscriptionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := strconv.ParseUint(c.Params("accountId"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid account id")
		}
		acc, err := mgr.Status(uint(accountID))
		if err != nil {
			return err
		}
		if acc == nil {
			return fiber.NewError(fiber.StatusNotFound, "account not found")
		}
		return c.JSON(fiber.Map{
			"account_id":         acc.ID,
			"status":             acc.SubscriptionStatus,
			"plan_id":            acc.PlanID,
			"plan_name":          acc.PlanName,
			"current_period_end": acc.CurrentPeriodEnd,
		})
	}
}

// SubscriptionReport returns the weekly aggregate counts on demand.
func SubscriptionReport(mgr *services.SubscriptionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := mgr.WeeklyReport()
		if err != nil {
			return err
		}
		return c.JSON(stats)
	}
}

// BillingWebhook applies one provider event. The signature was already
// verified by the middleware; unrecognized event types are accepted and
// ignored so the provider does not retry them.
func BillingWebhook(mgr *services.SubscriptionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var evt services.WebhookEvent
		if err := c.BodyParser(&evt); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid event payload")
		}
		if err := mgr.HandleWebhook(&evt); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"received": true})
	}
}
