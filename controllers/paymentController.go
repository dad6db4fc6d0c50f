package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"educore-backend/middlewares"
	"educore-backend/services"
	"educore-backend/utils"
)

type recordPaymentDTO struct {
	AccountID     uint    `json:"account_id" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Currency      string  `json:"currency" validate:"required,len=3"`
	TransactionID string  `json:"transaction_id" validate:"required"`
	Method        string  `json:"method" validate:"required"`
	PlanID        string  `json:"plan_id"`
}

// RecordPayment records a provider transaction exactly once. Replays with
// the same transaction id return the original payment unchanged.
func RecordPayment(svc *services.AntiDuplication) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto recordPaymentDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}
		utils.NormalizeDTO(&dto)

		payment, err := svc.RecordPayment(dto.AccountID, dto.Amount, dto.Currency,
			dto.TransactionID, dto.Method, dto.PlanID)
		if err != nil {
			return err
		}
		return c.JSON(payment)
	}
}

type sendNotificationDTO struct {
	AccountID     uint   `json:"account_id" validate:"required"`
	Type          string `json:"type" validate:"required"`
	Content       string `json:"content" validate:"required"`
	Channel       string `json:"channel" validate:"required,oneof=email sms whatsapp"`
	WindowSeconds int    `json:"window_seconds"`
}

// SendNotification sends through the throttled path: at most one
// notification per (account, type) inside the throttle window. A throttled
// send is a soft outcome, not an error.
func SendNotification(svc *services.AntiDuplication) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto sendNotificationDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}

		window := services.DefaultThrottleWindow
		if dto.WindowSeconds > 0 {
			window = time.Duration(dto.WindowSeconds) * time.Second
		}

		result, err := svc.SendNotificationThrottled(dto.AccountID, dto.Type, dto.Content, dto.Channel, window)
		if err != nil {
			return err
		}
		return c.JSON(result)
	}
}
