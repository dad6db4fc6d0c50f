package billing

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"educore-backend/models"
	"educore-backend/services"
)

// Sandbox is an in-memory billing provider for local and sandbox
// deployments. It honors the same contract as the production provider
// client: customers and prices are get-or-create, subscriptions report an
// authoritative status, cancellation is definitive.
type Sandbox struct {
	mu        sync.Mutex
	customers map[uint]string   // account id -> customer id
	prices    map[string]string // plan id -> price id
	subs      map[string]*services.ProviderSubscription
}

// NewSandbox returns an empty provider.
func NewSandbox() *Sandbox {
	return &Sandbox{
		customers: make(map[uint]string),
		prices:    make(map[string]string),
		subs:      make(map[string]*services.ProviderSubscription),
	}
}

func (s *Sandbox) CreateOrGetCustomer(acc *models.Account) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.customers[acc.ID]; ok {
		return id, nil
	}
	id := "cus_" + uuid.NewString()
	s.customers[acc.ID] = id
	return id, nil
}

func (s *Sandbox) CreateCharge(customerID, planID string, amount float64, currency string) (*services.Charge, error) {
	if customerID == "" {
		return nil, fmt.Errorf("charge requires a customer")
	}
	return &services.Charge{TransactionID: "txn_" + uuid.NewString(), Succeeded: true}, nil
}

func (s *Sandbox) CreateOrGetRecurringPrice(planID string, amount float64, currency string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.prices[planID]; ok {
		return id, nil
	}
	id := "price_" + uuid.NewString()
	s.prices[planID] = id
	return id, nil
}

func (s *Sandbox) CreateSubscription(customerID, priceID string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "sub_" + uuid.NewString()
	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	s.subs[id] = &services.ProviderSubscription{Active: true, PeriodEnd: periodEnd}
	return id, periodEnd, nil
}

func (s *Sandbox) GetSubscriptionStatus(subID string) (*services.ProviderSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subID]
	if !ok {
		return &services.ProviderSubscription{Active: false}, nil
	}
	copied := *sub
	return &copied, nil
}

func (s *Sandbox) CancelSubscription(subID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[subID]; ok {
		sub.Active = false
	}
	return nil
}
