package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatedash/api/models"
	"climatedash/api/store"
)

const iPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Mobile/15E148 Safari/604.1"

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.TrackingEvent
}

func (p *recordingPublisher) Publish(event models.TrackingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestTracker(t *testing.T, strict bool) (*Tracker, *store.MemoryEventStore, *recordingPublisher) {
	t.Helper()
	st := store.NewMemoryEventStore()
	pub := &recordingPublisher{}
	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(st, Options{
		StrictSessions: strict,
		Now:            clock.Now,
		Publisher:      pub,
	})
	return tr, st, pub
}

func TestStartSession_PersistsClassifiedOpenSession(t *testing.T) {
	tr, st, pub := newTestTracker(t, true)
	ctx := context.Background()

	id, err := tr.StartSession(ctx, StartSessionInput{
		UserAgent:     iPhoneUA,
		ClientAddress: "203.0.113.7",
		Referrer:      "https://example.org",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceMobile, sess.DeviceType)
	assert.Equal(t, "203.0.113.7", sess.IPAddress)
	assert.Equal(t, "https://example.org", sess.Referrer)
	assert.Nil(t, sess.EndTime)

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventSessionStart, pub.events[0].EventType)
	assert.NotEmpty(t, pub.events[0].EventID)
}

func TestStartSession_DistinctIDsForIdenticalInputs(t *testing.T) {
	tr, _, _ := newTestTracker(t, true)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := tr.StartSession(ctx, StartSessionInput{UserAgent: iPhoneUA, ClientAddress: "10.0.0.1"})
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
}

func TestStartSession_UnknownAgentFallsBack(t *testing.T) {
	tr, st, _ := newTestTracker(t, true)
	ctx := context.Background()

	id, err := tr.StartSession(ctx, StartSessionInput{UserAgent: "curl-ish/0.1 ???"})
	require.NoError(t, err)

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceDesktop, sess.DeviceType)
}

func TestEndSession(t *testing.T) {
	tr, st, _ := newTestTracker(t, true)
	ctx := context.Background()

	id, err := tr.StartSession(ctx, StartSessionInput{UserAgent: iPhoneUA})
	require.NoError(t, err)

	require.NoError(t, tr.EndSession(ctx, id))
	first, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first.EndTime)
	assert.False(t, first.EndTime.Before(first.StartTime))

	// second end keeps the first end time
	require.NoError(t, tr.EndSession(ctx, id))
	second, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, first.EndTime.Equal(*second.EndTime))
	assert.Equal(t, float64(1), testutil.ToFloat64(tr.metrics.sessionsEnded))
}

func TestEndSession_Errors(t *testing.T) {
	tr, _, _ := newTestTracker(t, true)
	ctx := context.Background()

	err := tr.EndSession(ctx, "")
	assert.True(t, models.IsValidation(err))

	err = tr.EndSession(ctx, "missing")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestEndSessionWithPageView(t *testing.T) {
	tr, st, _ := newTestTracker(t, false)
	ctx := context.Background()

	t.Run("unknown session writes nothing", func(t *testing.T) {
		err := tr.EndSessionWithPageView(ctx, "ghost", PageViewInput{URL: "/", TimeSpent: 4})
		assert.True(t, models.IsNotFound(err))

		views, err := st.PageViews(ctx)
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("records final view then ends", func(t *testing.T) {
		id, err := tr.StartSession(ctx, StartSessionInput{UserAgent: iPhoneUA})
		require.NoError(t, err)

		require.NoError(t, tr.EndSessionWithPageView(ctx, id, PageViewInput{URL: "/temperature", TimeSpent: 12.5}))

		views, err := st.SessionPageViews(ctx, id)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "/temperature", views[0].PageURL)

		sess, err := st.GetSession(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, sess.EndTime)
	})

	t.Run("repeated end keeps single view and first end time", func(t *testing.T) {
		id, err := tr.StartSession(ctx, StartSessionInput{UserAgent: iPhoneUA})
		require.NoError(t, err)

		require.NoError(t, tr.EndSessionWithPageView(ctx, id, PageViewInput{URL: "/rainfall", TimeSpent: 3}))
		first, err := st.GetSession(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, first.EndTime)

		require.NoError(t, tr.EndSessionWithPageView(ctx, id, PageViewInput{URL: "/rainfall", TimeSpent: 8}))

		views, err := st.SessionPageViews(ctx, id)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, float64(3), views[0].TimeSpent)

		second, err := st.GetSession(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, second.EndTime)
		assert.True(t, first.EndTime.Equal(*second.EndTime))
	})
}

func TestRecordPageView(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		strict    bool
		sessionID string
		input     PageViewInput
		check     func(t *testing.T, err error)
	}{
		{
			name:      "empty session id",
			strict:    true,
			sessionID: "",
			input:     PageViewInput{URL: "/"},
			check:     func(t *testing.T, err error) { assert.True(t, models.IsValidation(err)) },
		},
		{
			name:      "negative time spent",
			strict:    true,
			sessionID: "abc",
			input:     PageViewInput{URL: "/", TimeSpent: -1},
			check:     func(t *testing.T, err error) { assert.True(t, models.IsValidation(err)) },
		},
		{
			name:      "unknown session in strict mode",
			strict:    true,
			sessionID: "abc",
			input:     PageViewInput{URL: "/"},
			check:     func(t *testing.T, err error) { assert.True(t, models.IsNotFound(err)) },
		},
		{
			name:      "unknown session in permissive mode",
			strict:    false,
			sessionID: "abc",
			input:     PageViewInput{URL: "/"},
			check:     func(t *testing.T, err error) { assert.NoError(t, err) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _, _ := newTestTracker(t, tt.strict)
			tt.check(t, tr.RecordPageView(ctx, tt.sessionID, tt.input))
		})
	}
}

func TestRecordInteraction(t *testing.T) {
	tr, st, pub := newTestTracker(t, true)
	ctx := context.Background()

	id, err := tr.StartSession(ctx, StartSessionInput{UserAgent: iPhoneUA})
	require.NoError(t, err)

	spent := 3.5
	require.NoError(t, tr.RecordInteraction(ctx, id, InteractionInput{
		Type:        models.InteractionTabSwitch,
		ElementID:   "rainfall",
		ElementType: "tab",
		TimeSpent:   &spent,
	}))
	require.NoError(t, tr.RecordInteraction(ctx, id, InteractionInput{Type: "click"}))

	got, err := st.SessionInteractions(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rainfall", got[0].ElementID)
	require.NotNil(t, got[0].TimeSpent)
	assert.Equal(t, 3.5, *got[0].TimeSpent)
	assert.Nil(t, got[1].TimeSpent)
	assert.Equal(t, "", got[1].ElementID)

	negative := -2.0
	err = tr.RecordInteraction(ctx, id, InteractionInput{Type: "click", TimeSpent: &negative})
	assert.True(t, models.IsValidation(err))

	assert.Len(t, pub.events, 3)
	assert.Equal(t, float64(2), testutil.ToFloat64(tr.metrics.events.WithLabelValues(models.EventInteraction)))
}

func TestRecordMetric(t *testing.T) {
	tr, st, _ := newTestTracker(t, true)
	ctx := context.Background()

	id, err := tr.StartSession(ctx, StartSessionInput{UserAgent: iPhoneUA})
	require.NoError(t, err)

	value := 1.25
	require.NoError(t, tr.RecordMetric(ctx, id, "chart_load", &value))
	require.NoError(t, tr.RecordMetric(ctx, id, "chart_load", &value))

	err = tr.RecordMetric(ctx, id, "", &value)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "metric_name", verr.Field)

	err = tr.RecordMetric(ctx, id, "chart_load", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "metric_value", verr.Field)

	metrics, err := st.SessionMetrics(ctx, id)
	require.NoError(t, err)
	assert.Len(t, metrics, 2, "duplicates are kept and invalid calls persist nothing")
	assert.Equal(t, float64(2), testutil.ToFloat64(tr.metrics.rejections.WithLabelValues(reasonValidation)))
}

type failingStore struct {
	store.EventStore
}

var errDiskFull = errors.New("disk full")

func (failingStore) CreateSession(ctx context.Context, s *models.Session) error {
	return &models.StorageError{Op: "create session", Err: errDiskFull}
}

func TestStartSession_StorageFailure(t *testing.T) {
	pub := &recordingPublisher{}
	tr := New(failingStore{}, Options{Publisher: pub})

	_, err := tr.StartSession(context.Background(), StartSessionInput{UserAgent: iPhoneUA})
	require.Error(t, err)
	assert.True(t, models.IsStorage(err))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, pub.events)
	assert.Equal(t, float64(1), testutil.ToFloat64(tr.metrics.rejections.WithLabelValues(reasonStorage)))
}

func TestEventData_UnencodableValue(t *testing.T) {
	tr, _, _ := newTestTracker(t, true)

	assert.Nil(t, tr.eventData(map[string]interface{}{"ch": make(chan int)}))
	assert.JSONEq(t, `{"os":"iOS"}`, string(tr.eventData(map[string]string{"os": "iOS"})))
}
