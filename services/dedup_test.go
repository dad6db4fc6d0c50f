package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"educore-backend/cache"
	"educore-backend/locks"
	"educore-backend/models"
)

func newDedup(t *testing.T) (*AntiDuplication, *memStore, *fakeNotifier) {
	t.Helper()
	store := newMemStore()
	notifier := &fakeNotifier{}
	svc := NewAntiDuplication(store, locks.NewManager(), cache.NewThrottle(), notifier)
	return svc, store, notifier
}

func TestRecordAttendanceCreatesThenUpdates(t *testing.T) {
	svc, store, _ := newDedup(t)

	entries := []models.AttendanceEntry{{StudentID: 1, Present: true}}
	first, err := svc.RecordAttendance(10, 5, "2026-09-01", entries)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same class and date again: the sheet is replaced, not duplicated.
	entries[0].Present = false
	second, err := svc.RecordAttendance(11, 5, "2026-09-01", entries)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, uint(11), second.TeacherID)
	assert.Len(t, store.sheets, 1)
}

func TestRecordGradeReplacesPerTuple(t *testing.T) {
	svc, store, _ := newDedup(t)

	first, err := svc.RecordGrade(3, 7, "math", "T1", 12.345)
	require.NoError(t, err)
	assert.Equal(t, 12.35, first.Score) // rounded to cents

	second, err := svc.RecordGrade(3, 7, "math", "T1", 15)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.grades, 1)

	// Different term is a different tuple.
	_, err = svc.RecordGrade(3, 7, "math", "T2", 9)
	require.NoError(t, err)
	assert.Len(t, store.grades, 2)
}

func TestEnrollStudentReassignsExisting(t *testing.T) {
	svc, store, _ := newDedup(t)

	first, err := svc.EnrollStudent(&models.Student{Email: "a@ex.cm", SchoolID: 1, ClassID: 4})
	require.NoError(t, err)

	second, err := svc.EnrollStudent(&models.Student{Email: "a@ex.cm", SchoolID: 1, ClassID: 9})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, uint(9), second.ClassID)
	assert.Len(t, store.students, 1)

	// Same email at another school is a distinct student.
	_, err = svc.EnrollStudent(&models.Student{Email: "a@ex.cm", SchoolID: 2, ClassID: 1})
	require.NoError(t, err)
	assert.Len(t, store.students, 2)
}

func TestConcurrentEnrollNeverDuplicates(t *testing.T) {
	svc, store, _ := newDedup(t)

	const n = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, contended := 0, 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(class uint) {
			defer wg.Done()
			_, err := svc.EnrollStudent(&models.Student{Email: "race@ex.cm", SchoolID: 1, ClassID: class})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case locks.IsContention(err):
				contended++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.GreaterOrEqual(t, successes, 1)
	assert.Equal(t, n, successes+contended)
	assert.Len(t, store.students, 1)
}

func TestUpdateStudentProfileIgnoresIdentityFields(t *testing.T) {
	svc, store, _ := newDedup(t)

	student, err := svc.EnrollStudent(&models.Student{Email: "a@ex.cm", SchoolID: 1, ClassID: 4, FirstName: "Ada"})
	require.NoError(t, err)

	updated, err := svc.UpdateStudentProfile(student.ID, map[string]any{
		"first_name": "Adaeze",
		"email":      "moved@ex.cm", // identity, must be dropped
	})
	require.NoError(t, err)
	assert.Equal(t, "Adaeze", updated.FirstName)
	assert.Equal(t, "a@ex.cm", updated.Email)
	assert.Len(t, store.students, 1)

	_, err = svc.UpdateStudentProfile(student.ID, map[string]any{"email": "moved@ex.cm"})
	require.Error(t, err, "identity-only update has nothing to apply")
}

func TestCreateClassUpserts(t *testing.T) {
	svc, store, _ := newDedup(t)

	first, err := svc.CreateClass(&models.SchoolClass{SchoolID: 2, Name: "6eme A", Level: "6eme"})
	require.NoError(t, err)

	second, err := svc.CreateClass(&models.SchoolClass{SchoolID: 2, Name: "6eme A", Level: "6eme"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.classes, 1)
}

func TestRecordPaymentWriteOnce(t *testing.T) {
	svc, store, _ := newDedup(t)

	first, err := svc.RecordPayment(1, 5000, "XAF", "txn_abc", "card", "premium_monthly")
	require.NoError(t, err)
	require.NotNil(t, first)

	// A retry with the same transaction id returns the original row,
	// ignoring any changed amount.
	second, err := svc.RecordPayment(1, 9999, "XAF", "txn_abc", "card", "premium_monthly")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Amount, second.Amount)
	assert.Len(t, store.payments, 1)
}

func TestConcurrentRecordPaymentSingleRow(t *testing.T) {
	svc, store, _ := newDedup(t)

	const n = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := map[string]bool{}
	contended := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.RecordPayment(1, 5000, "XAF", "txn_race", "card", "premium_monthly")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				require.True(t, locks.IsContention(err), "unexpected error: %v", err)
				contended++
				return
			}
			ids[p.ID] = true
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1, "all successful callers must observe the same payment")
	assert.Len(t, store.payments, 1)
	assert.Less(t, contended, n, "at least one caller must win the lock")
}

func TestNotificationThrottledInsideWindow(t *testing.T) {
	svc, store, notifier := newDedup(t)

	first, err := svc.SendNotificationThrottled(7, "subscription_reminder_7d", "renew soon", "email", time.Minute)
	require.NoError(t, err)
	assert.False(t, first.Throttled)
	require.NotNil(t, first.Notification)

	// Inside the window: dropped, no store write, no external send.
	second, err := svc.SendNotificationThrottled(7, "subscription_reminder_7d", "renew soon", "email", time.Minute)
	require.NoError(t, err)
	assert.True(t, second.Throttled)
	assert.Nil(t, second.Notification)

	assert.Equal(t, 1, notifier.count())
	assert.Len(t, store.notes, 1)

	// A different type for the same account is its own key.
	third, err := svc.SendNotificationThrottled(7, "subscription_expired", "expired", "email", time.Minute)
	require.NoError(t, err)
	assert.False(t, third.Throttled)
	assert.Equal(t, 2, notifier.count())
}

func TestNotificationAllowedAfterWindow(t *testing.T) {
	svc, _, notifier := newDedup(t)

	_, err := svc.SendNotificationThrottled(7, "ping", "x", "sms", 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	res, err := svc.SendNotificationThrottled(7, "ping", "x", "sms", 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Throttled)
	assert.Equal(t, 2, notifier.count())
}

func TestLockContentionSurfacesAsTypedError(t *testing.T) {
	mgr := locks.NewManager()
	svc := NewAntiDuplication(newMemStore(), mgr, cache.NewThrottle(), &fakeNotifier{})

	key := fmt.Sprintf("attendance:%d:%s", 5, "2026-09-01")
	require.NoError(t, mgr.TryAcquire(key, time.Minute))
	defer mgr.Release(key)

	_, err := svc.RecordAttendance(1, 5, "2026-09-01", nil)
	require.Error(t, err)
	assert.True(t, locks.IsContention(err))
}
