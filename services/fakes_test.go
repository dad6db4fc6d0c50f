package services

import (
	"fmt"
	"sync"
	"time"

	"educore-backend/models"
)

// memStore is an in-memory Store/AuditStore/SubscriptionStore for tests.
type memStore struct {
	mu sync.Mutex

	sheets   map[string]*models.AttendanceSheet // classID:date
	grades   map[string]*models.Grade           // studentID:subject:term
	students map[string]*models.Student         // email:schoolID
	classes  map[string]*models.SchoolClass     // schoolID:name:level
	payments map[string]*models.Payment         // transaction id
	notes    []*models.Notification

	accounts map[uint]*models.Account
	schools  map[uint]*models.School
	staff    map[uint]*models.Staff
	links    []models.StaffSchoolLink

	nextID uint
}

func newMemStore() *memStore {
	return &memStore{
		sheets:   make(map[string]*models.AttendanceSheet),
		grades:   make(map[string]*models.Grade),
		students: make(map[string]*models.Student),
		classes:  make(map[string]*models.SchoolClass),
		payments: make(map[string]*models.Payment),
		accounts: make(map[uint]*models.Account),
		schools:  make(map[uint]*models.School),
		staff:    make(map[uint]*models.Staff),
		nextID:   1,
	}
}

func (m *memStore) id() uint {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memStore) GetAttendanceSheet(classID uint, date string) (*models.AttendanceSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sheets[fmt.Sprintf("%d:%s", classID, date)]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) UpsertAttendanceSheet(sheet *models.AttendanceSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d:%s", sheet.ClassID, sheet.Date)
	if existing, ok := m.sheets[key]; ok {
		sheet.ID = existing.ID
	} else if sheet.ID == 0 {
		sheet.ID = m.id()
	}
	copied := *sheet
	m.sheets[key] = &copied
	return nil
}

func (m *memStore) UpsertGrade(grade *models.Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d:%s:%s", grade.StudentID, grade.Subject, grade.Term)
	if existing, ok := m.grades[key]; ok {
		grade.ID = existing.ID
	} else {
		grade.ID = m.id()
	}
	copied := *grade
	m.grades[key] = &copied
	return nil
}

func (m *memStore) GetStudentByEmailAndSchool(email string, schoolID uint) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.students[fmt.Sprintf("%s:%d", email, schoolID)]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) CreateStudent(student *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%d", student.Email, student.SchoolID)
	if existing, ok := m.students[key]; ok {
		// conflict on the natural key: last write's class wins
		existing.ClassID = student.ClassID
		*student = *existing
		return nil
	}
	student.ID = m.id()
	copied := *student
	m.students[key] = &copied
	return nil
}

func (m *memStore) UpdateStudentClass(studentID, classID uint) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.ID == studentID {
			s.ClassID = classID
			copied := *s
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("student %d not found", studentID)
}

func (m *memStore) UpdateStudentFields(studentID uint, updates map[string]any) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.ID != studentID {
			continue
		}
		for field, val := range updates {
			switch field {
			case "first_name":
				s.FirstName = val.(string)
			case "last_name":
				s.LastName = val.(string)
			case "roll_number":
				s.RollNumber = val.(string)
			case "class_id":
				s.ClassID = val.(uint)
			}
		}
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) UpsertClass(class *models.SchoolClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d:%s:%s", class.SchoolID, class.Name, class.Level)
	if existing, ok := m.classes[key]; ok {
		class.ID = existing.ID
	} else {
		class.ID = m.id()
	}
	copied := *class
	m.classes[key] = &copied
	return nil
}

func (m *memStore) GetPaymentByTransactionID(transactionID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[transactionID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) CreatePaymentIfAbsent(payment *models.Payment) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.payments[payment.TransactionID]; ok {
		copied := *existing
		return &copied, nil
	}
	copied := *payment
	m.payments[payment.TransactionID] = &copied
	result := copied
	return &result, nil
}

func (m *memStore) CreateNotification(n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.id()
	copied := *n
	m.notes = append(m.notes, &copied)
	return nil
}

// ---- AuditStore

func (m *memStore) ListAccounts() ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) ListSchools() ([]models.School, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.School, 0, len(m.schools))
	for _, s := range m.schools {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) ListClasses() ([]models.SchoolClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SchoolClass, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) ListStudents() ([]models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) ListStaff() ([]models.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Staff, 0, len(m.staff))
	for _, s := range m.staff {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) UpdateAccountUsername(accountID uint, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.Username = username
		return nil
	}
	return fmt.Errorf("account %d not found", accountID)
}

func (m *memStore) ClearAccountPhone(accountID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.Phone = ""
		return nil
	}
	return fmt.Errorf("account %d not found", accountID)
}

func (m *memStore) UpdateSchoolName(schoolID uint, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schools[schoolID]; ok {
		s.Name = name
		return nil
	}
	return fmt.Errorf("school %d not found", schoolID)
}

func (m *memStore) CreateStaffSchoolLink(staffID, schoolID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.StaffID == staffID && l.SchoolID == schoolID {
			return nil
		}
	}
	m.links = append(m.links, models.StaffSchoolLink{StaffID: staffID, SchoolID: schoolID})
	return nil
}

// ---- SubscriptionStore

func (m *memStore) GetAccount(accountID uint) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) GetAccountByExternalSubID(subID string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ExternalSubID == subID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) SaveAccountSubscription(acc *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[acc.ID]
	if !ok {
		return fmt.Errorf("account %d not found", acc.ID)
	}
	stored.SubscriptionStatus = acc.SubscriptionStatus
	stored.PlanID = acc.PlanID
	stored.PlanName = acc.PlanName
	stored.ExternalSubID = acc.ExternalSubID
	stored.ExternalCustomerID = acc.ExternalCustomerID
	stored.CurrentPeriodEnd = acc.CurrentPeriodEnd
	stored.Reminder7SentAt = acc.Reminder7SentAt
	stored.Reminder1SentAt = acc.Reminder1SentAt
	return nil
}

func (m *memStore) ListExpiredSubscriptions(now time.Time) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, a := range m.accounts {
		if a.SubscriptionStatus == models.SubscriptionActive &&
			a.CurrentPeriodEnd != nil && a.CurrentPeriodEnd.Before(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListExpiringBetween(from, to time.Time) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, a := range m.accounts {
		if a.SubscriptionStatus != models.SubscriptionActive || a.CurrentPeriodEnd == nil {
			continue
		}
		end := *a.CurrentPeriodEnd
		if !end.Before(from) && end.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) SubscriptionStats() (*SubscriptionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &SubscriptionStats{}
	for _, a := range m.accounts {
		switch a.SubscriptionStatus {
		case models.SubscriptionActive:
			stats.Active++
		case models.SubscriptionExpired:
			stats.Expired++
		case models.SubscriptionCancelled:
			stats.Cancelled++
		case models.SubscriptionFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// fakeNotifier records sends.
type fakeNotifier struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeNotifier) Send(accountID uint, channel, notifType, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, fmt.Sprintf("%d:%s", accountID, notifType))
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

// fakeProvider is a scriptable billing provider.
type fakeProvider struct {
	mu sync.Mutex

	subActive    map[string]bool
	subPeriodEnd map[string]time.Time
	statusErr    error
	cancelErr    error
	chargeFail   bool
	cancelled    []string
	statusCalls  int
	chargeCalls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subActive:    make(map[string]bool),
		subPeriodEnd: make(map[string]time.Time),
	}
}

func (f *fakeProvider) CreateOrGetCustomer(acc *models.Account) (string, error) {
	return fmt.Sprintf("cus_%d", acc.ID), nil
}

func (f *fakeProvider) CreateCharge(customerID, planID string, amount float64, currency string) (*Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeCalls++
	return &Charge{TransactionID: "txn_" + customerID, Succeeded: !f.chargeFail}, nil
}

func (f *fakeProvider) CreateOrGetRecurringPrice(planID string, amount float64, currency string) (string, error) {
	return "price_" + planID, nil
}

func (f *fakeProvider) CreateSubscription(customerID, priceID string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "sub_" + customerID
	end := time.Now().Add(30 * 24 * time.Hour)
	f.subActive[id] = true
	f.subPeriodEnd[id] = end
	return id, end, nil
}

func (f *fakeProvider) GetSubscriptionStatus(subID string) (*ProviderSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &ProviderSubscription{
		Active:    f.subActive[subID],
		PeriodEnd: f.subPeriodEnd[subID],
	}, nil
}

func (f *fakeProvider) CancelSubscription(subID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.subActive[subID] = false
	f.cancelled = append(f.cancelled, subID)
	return nil
}
