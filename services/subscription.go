package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"educore-backend/locks"
	"educore-backend/models"
)

const subscriptionLockTTL = 30 * time.Second

// Webhook event types recognized from the billing provider. Anything else
// is accepted and ignored.
const (
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentFailed       = "payment.failed"
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
)

// WebhookEvent is a verified, parsed event from the billing provider.
type WebhookEvent struct {
	Type           string     `json:"type"`
	AccountID      uint       `json:"account_id"`
	SubscriptionID string     `json:"subscription_id"`
	TransactionID  string     `json:"transaction_id"`
	PlanID         string     `json:"plan_id"`
	PlanName       string     `json:"plan_name"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	PeriodEnd      *time.Time `json:"period_end"`
}

// allowedTransitions are the only legal status edges. active->expired is
// additionally restricted to the sweep, which reconciles with the provider
// first when an external subscription is linked.
var allowedTransitions = map[string][]string{
	models.SubscriptionNone:      {models.SubscriptionActive},
	models.SubscriptionActive:    {models.SubscriptionFailed, models.SubscriptionCancelled, models.SubscriptionExpired, models.SubscriptionActive},
	models.SubscriptionFailed:    {models.SubscriptionActive},
	models.SubscriptionExpired:   {models.SubscriptionActive},
	models.SubscriptionCancelled: {models.SubscriptionActive},
}

func transitionAllowed(from, to string) bool {
	if from == "" {
		from = models.SubscriptionNone
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobIntervals configures the three scheduled passes. Zero values get the
// production defaults (hourly sweep, daily reminders, weekly report).
type JobIntervals struct {
	Sweep  time.Duration
	Remind time.Duration
	Report time.Duration
}

func (ji *JobIntervals) defaults() {
	if ji.Sweep == 0 {
		ji.Sweep = time.Hour
	}
	if ji.Remind == 0 {
		ji.Remind = 24 * time.Hour
	}
	if ji.Report == 0 {
		ji.Report = 7 * 24 * time.Hour
	}
}

// SubscriptionManager reconciles two independent writers of per-account
// subscription state: the periodic sweep and the provider's webhook stream.
// Every transition acquires the per-account lock before read-modify-write,
// and destructive transitions consult the provider first.
type SubscriptionManager struct {
	store    SubscriptionStore
	provider BillingProvider
	locks    *locks.Manager
	dedup    *AntiDuplication

	stop chan struct{}
	done chan struct{}
}

// NewSubscriptionManager wires the lifecycle manager to its collaborators.
func NewSubscriptionManager(store SubscriptionStore, provider BillingProvider, mgr *locks.Manager, dedup *AntiDuplication) *SubscriptionManager {
	return &SubscriptionManager{store: store, provider: provider, locks: mgr, dedup: dedup}
}

func accountLockKey(accountID uint) string {
	return fmt.Sprintf("subscription:%d", accountID)
}

// withAccountLock runs fn holding the per-account lock with a fresh read of
// the account, then persists whatever fn left on it.
func (m *SubscriptionManager) withAccountLock(accountID uint, fn func(acc *models.Account) error) error {
	return m.locks.WithLock(accountLockKey(accountID), subscriptionLockTTL, func() error {
		acc, err := m.store.GetAccount(accountID)
		if err != nil {
			return err
		}
		if acc == nil {
			return fmt.Errorf("account %d not found", accountID)
		}
		if err := fn(acc); err != nil {
			return err
		}
		return m.store.SaveAccountSubscription(acc)
	})
}

// Subscribe creates a recurring subscription with the provider and activates
// it locally.
func (m *SubscriptionManager) Subscribe(accountID uint, planID string, amount float64, currency string) error {
	return m.withAccountLock(accountID, func(acc *models.Account) error {
		customerID, err := m.provider.CreateOrGetCustomer(acc)
		if err != nil {
			return err
		}
		priceID, err := m.provider.CreateOrGetRecurringPrice(planID, amount, currency)
		if err != nil {
			return err
		}
		subID, periodEnd, err := m.provider.CreateSubscription(customerID, priceID)
		if err != nil {
			return err
		}

		acc.ExternalCustomerID = customerID
		acc.ExternalSubID = subID
		return m.activate(acc, planID, &periodEnd)
	})
}

// ConfirmPayment records a provider transaction (write-once) and activates
// the subscription it paid for. Safe to retry: a duplicate transaction id
// returns the original payment and the activation is idempotent. With an
// empty transaction id the provider is asked to charge synchronously.
func (m *SubscriptionManager) ConfirmPayment(accountID uint, planID, transactionID string, amount float64, currency string) (*models.Payment, error) {
	if transactionID == "" {
		acc, err := m.store.GetAccount(accountID)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			return nil, fmt.Errorf("account %d not found", accountID)
		}
		customerID, err := m.provider.CreateOrGetCustomer(acc)
		if err != nil {
			return nil, err
		}
		charge, err := m.provider.CreateCharge(customerID, planID, amount, currency)
		if err != nil {
			return nil, err
		}
		if !charge.Succeeded {
			declineErr := m.withAccountLock(accountID, func(acc *models.Account) error {
				if transitionAllowed(acc.SubscriptionStatus, models.SubscriptionFailed) {
					acc.SubscriptionStatus = models.SubscriptionFailed
				}
				return nil
			})
			if declineErr != nil {
				log.Printf("[subscriptions] recording declined charge for account %d failed: %v", accountID, declineErr)
			}
			return nil, fmt.Errorf("charge declined for account %d", accountID)
		}
		transactionID = charge.TransactionID
	}

	payment, err := m.dedup.RecordPayment(accountID, amount, currency, transactionID, "provider", planID)
	if err != nil {
		return nil, err
	}

	err = m.withAccountLock(accountID, func(acc *models.Account) error {
		return m.activate(acc, planID, nil)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// activate moves acc to active under the caller-held lock. When periodEnd is
// nil the plan's own duration is used.
func (m *SubscriptionManager) activate(acc *models.Account, planID string, periodEnd *time.Time) error {
	if !transitionAllowed(acc.SubscriptionStatus, models.SubscriptionActive) {
		return fmt.Errorf("cannot activate subscription from status %q", acc.SubscriptionStatus)
	}
	end := time.Now().Add(planPeriod(planID))
	if periodEnd != nil {
		end = *periodEnd
	}
	acc.SubscriptionStatus = models.SubscriptionActive
	acc.PlanID = planID
	acc.CurrentPeriodEnd = &end
	acc.Reminder7SentAt = nil
	acc.Reminder1SentAt = nil
	log.Printf("[subscriptions] account %d active on plan %s until %s", acc.ID, planID, end.Format(time.RFC3339))
	return nil
}

// Cancel ends the subscription client-side. When a provider linkage exists
// the cancellation is confirmed with the provider first; a provider failure
// aborts the local transition.
func (m *SubscriptionManager) Cancel(accountID uint) error {
	return m.withAccountLock(accountID, func(acc *models.Account) error {
		if !transitionAllowed(acc.SubscriptionStatus, models.SubscriptionCancelled) {
			return fmt.Errorf("cannot cancel subscription in status %q", acc.SubscriptionStatus)
		}
		if acc.ExternalSubID != "" {
			if err := m.provider.CancelSubscription(acc.ExternalSubID); err != nil {
				return fmt.Errorf("provider cancellation failed: %w", err)
			}
		}
		acc.SubscriptionStatus = models.SubscriptionCancelled
		log.Printf("[subscriptions] account %d cancelled", acc.ID)
		return nil
	})
}

// Status returns the current local subscription state.
func (m *SubscriptionManager) Status(accountID uint) (*models.Account, error) {
	return m.store.GetAccount(accountID)
}

// HandleWebhook applies one verified provider event. Unrecognized event
// types are accepted and ignored. Lock contention is returned to the caller,
// which should surface a retryable status to the provider.
func (m *SubscriptionManager) HandleWebhook(evt *WebhookEvent) error {
	switch evt.Type {
	case EventPaymentSucceeded:
		_, err := m.ConfirmPayment(evt.AccountID, evt.PlanID, evt.TransactionID, evt.Amount, evt.Currency)
		return err

	case EventPaymentFailed:
		return m.withAccountLock(evt.AccountID, func(acc *models.Account) error {
			if !transitionAllowed(acc.SubscriptionStatus, models.SubscriptionFailed) {
				log.Printf("[subscriptions] ignoring payment failure for account %d in status %q", acc.ID, acc.SubscriptionStatus)
				return nil
			}
			acc.SubscriptionStatus = models.SubscriptionFailed
			log.Printf("[subscriptions] account %d marked failed (transaction %s)", acc.ID, evt.TransactionID)
			return nil
		})

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return m.withAccountLock(evt.AccountID, func(acc *models.Account) error {
			acc.ExternalSubID = evt.SubscriptionID
			if evt.PlanName != "" {
				acc.PlanName = evt.PlanName
			}
			return m.activate(acc, evt.PlanID, evt.PeriodEnd)
		})

	case EventSubscriptionDeleted:
		acc, err := m.store.GetAccountByExternalSubID(evt.SubscriptionID)
		if err != nil {
			return err
		}
		if acc == nil {
			log.Printf("[subscriptions] deleted event for unknown subscription %s, ignoring", evt.SubscriptionID)
			return nil
		}
		return m.withAccountLock(acc.ID, func(acc *models.Account) error {
			if !transitionAllowed(acc.SubscriptionStatus, models.SubscriptionCancelled) {
				return nil
			}
			acc.SubscriptionStatus = models.SubscriptionCancelled
			acc.ExternalSubID = ""
			return nil
		})

	default:
		log.Printf("[subscriptions] ignoring webhook event type %q", evt.Type)
		return nil
	}
}

// SweepExpired expires active subscriptions whose cached period end has
// passed. Accounts with a provider linkage are reconciled first: if the
// provider still reports the subscription active, the local state is
// refreshed instead of expired. Accounts that cannot be reconciled, or whose
// lock is contended, are deferred to the next cycle.
func (m *SubscriptionManager) SweepExpired() {
	candidates, err := m.store.ListExpiredSubscriptions(time.Now())
	if err != nil {
		log.Printf("[subscriptions] sweep: listing candidates failed: %v", err)
		return
	}

	expired := 0
	for _, candidate := range candidates {
		err := m.withAccountLock(candidate.ID, func(acc *models.Account) error {
			if acc.SubscriptionStatus != models.SubscriptionActive {
				return nil // another writer got here first
			}
			if acc.CurrentPeriodEnd == nil || acc.CurrentPeriodEnd.After(time.Now()) {
				return nil
			}

			if acc.ExternalSubID != "" {
				sub, err := m.provider.GetSubscriptionStatus(acc.ExternalSubID)
				if err != nil {
					// Provider unreachable: defer rather than guess.
					return fmt.Errorf("reconciliation with provider failed: %w", err)
				}
				if sub.Active {
					// Renewal we have not observed yet, or clock skew.
					acc.CurrentPeriodEnd = &sub.PeriodEnd
					log.Printf("[subscriptions] account %d still active at provider, refreshed period end", acc.ID)
					return nil
				}
			}

			acc.SubscriptionStatus = models.SubscriptionExpired
			acc.ExternalSubID = ""
			acc.PlanID = ""
			acc.PlanName = ""
			expired++

			m.notify(acc, "subscription_expired", "Your subscription has expired. Renew to keep premium features.")
			return nil
		})
		if err != nil {
			if locks.IsContention(err) {
				// Expected when a webhook is mid-write; next sweep retries.
				log.Printf("[subscriptions] sweep: account %d busy, deferring", candidate.ID)
				continue
			}
			log.Printf("[subscriptions] sweep: account %d deferred: %v", candidate.ID, err)
		}
	}
	log.Printf("[subscriptions] sweep: processed %d candidates, expired %d", len(candidates), expired)
}

// SendReminders runs the daily pass: a 7-day and a 1-day notice per
// account, each sent once per period through the throttled path.
func (m *SubscriptionManager) SendReminders() {
	now := time.Now()

	m.remindWindow(now, 7*24*time.Hour, 7, func(acc *models.Account) **time.Time { return &acc.Reminder7SentAt })
	m.remindWindow(now, 24*time.Hour, 1, func(acc *models.Account) **time.Time { return &acc.Reminder1SentAt })
}

func (m *SubscriptionManager) remindWindow(now time.Time, window time.Duration, days int, flag func(*models.Account) **time.Time) {
	accounts, err := m.store.ListExpiringBetween(now, now.Add(window))
	if err != nil {
		log.Printf("[subscriptions] reminders: listing failed: %v", err)
		return
	}
	for _, candidate := range accounts {
		err := m.withAccountLock(candidate.ID, func(acc *models.Account) error {
			sentAt := flag(acc)
			if *sentAt != nil {
				return nil
			}
			content := fmt.Sprintf("Your subscription expires in %d day(s). Renew now to avoid interruption.", days)
			m.notify(acc, fmt.Sprintf("subscription_reminder_%dd", days), content)
			*sentAt = &now
			return nil
		})
		if err != nil && !locks.IsContention(err) {
			log.Printf("[subscriptions] reminders: account %d skipped: %v", candidate.ID, err)
		}
	}
}

func (m *SubscriptionManager) notify(acc *models.Account, notifType, content string) {
	if m.dedup == nil {
		return
	}
	if _, err := m.dedup.SendNotificationThrottled(acc.ID, notifType, content, "email", DefaultThrottleWindow); err != nil {
		log.Printf("[subscriptions] notification %s to account %d failed: %v", notifType, acc.ID, err)
	}
}

// WeeklyReport aggregates subscription counts for operators.
func (m *SubscriptionManager) WeeklyReport() (*SubscriptionStats, error) {
	stats, err := m.store.SubscriptionStats()
	if err != nil {
		return nil, err
	}
	log.Printf("[subscriptions] weekly report: active=%d expired=%d cancelled=%d failed=%d expiring7d=%d",
		stats.Active, stats.Expired, stats.Cancelled, stats.Failed, stats.ExpiringIn7Days)
	return stats, nil
}

// StartJobs launches the three scheduled passes on independent tickers.
func (m *SubscriptionManager) StartJobs(intervals JobIntervals) {
	if m.stop != nil {
		return
	}
	intervals.defaults()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func() {
		sweep := time.NewTicker(intervals.Sweep)
		remind := time.NewTicker(intervals.Remind)
		report := time.NewTicker(intervals.Report)
		defer sweep.Stop()
		defer remind.Stop()
		defer report.Stop()
		defer close(m.done)

		for {
			select {
			case <-sweep.C:
				m.SweepExpired()
			case <-remind.C:
				m.SendReminders()
			case <-report.C:
				if _, err := m.WeeklyReport(); err != nil {
					log.Printf("[subscriptions] weekly report failed: %v", err)
				}
			case <-m.stop:
				return
			}
		}
	}()
	log.Println("[subscriptions] scheduled jobs started")
}

// StopJobs halts the scheduled passes.
func (m *SubscriptionManager) StopJobs() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
	m.done = nil
}

// planPeriod maps a plan id to its billing period.
func planPeriod(planID string) time.Duration {
	if strings.Contains(planID, "annual") || strings.Contains(planID, "yearly") {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}
