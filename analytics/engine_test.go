package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatedash/api/models"
	"climatedash/api/store"
)

func seedSession(t *testing.T, st *store.MemoryEventStore, id string, start time.Time, end *time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, &models.Session{
		SessionID:  id,
		DeviceType: models.DeviceDesktop,
		StartTime:  start,
	}))
	if end != nil {
		_, err := st.EndSession(ctx, id, *end)
		require.NoError(t, err)
	}
}

func TestGetAggregateMetrics_EmptyStore(t *testing.T) {
	engine := NewEngine(store.NewMemoryEventStore(), WithClock(func() time.Time { return base }))

	report, err := engine.GetAggregateMetrics(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, report.AvgSessionDuration)
	assert.Nil(t, report.BounceRate)
	assert.Nil(t, report.AvgTimePerPage)
	assert.Nil(t, report.TopInteractions)
	assert.Equal(t, base, report.GeneratedAt)

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"avg_session_duration": null,
		"bounce_rate": null,
		"avg_time_per_page": null,
		"top_interactions": null,
		"tab_metrics": null,
		"tab_sequences": null,
		"generated_at": "2024-05-10T09:00:00Z"
	}`, string(raw))
}

func TestGetAggregateMetrics(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryEventStore()

	endA, endB := at(100), at(400)
	seedSession(t, st, "a", at(0), &endA)
	seedSession(t, st, "b", at(200), &endB)
	seedSession(t, st, "open", at(300), nil)

	for _, pv := range []models.PageView{
		{SessionID: "a", PageURL: "/", TimeSpent: 10, ViewTime: at(10)},
		{SessionID: "b", PageURL: "/", TimeSpent: 20, ViewTime: at(210)},
		{SessionID: "b", PageURL: "/rain", TimeSpent: 30, ViewTime: at(220)},
	} {
		pv := pv
		require.NoError(t, st.InsertPageView(ctx, &pv))
	}

	spent := 8.0
	for _, in := range []models.Interaction{
		{SessionID: "b", InteractionType: models.InteractionTabSwitch, ElementID: "A", InteractionTime: at(201)},
		{SessionID: "b", InteractionType: models.InteractionTabSwitch, ElementID: "B", InteractionTime: at(202), TimeSpent: &spent},
		{SessionID: "b", InteractionType: models.InteractionTabSwitch, ElementID: "A", InteractionTime: at(203)},
		{SessionID: "b", InteractionType: models.InteractionTabSwitch, ElementID: "C", InteractionTime: at(204)},
		{SessionID: "a", InteractionType: "click", ElementID: "chart", InteractionTime: at(20)},
	} {
		in := in
		require.NoError(t, st.InsertInteraction(ctx, &in))
	}

	engine := NewEngine(st)

	t.Run("without since", func(t *testing.T) {
		report, err := engine.GetAggregateMetrics(ctx, nil)
		require.NoError(t, err)

		require.NotNil(t, report.AvgSessionDuration)
		assert.InDelta(t, 150.0, *report.AvgSessionDuration, 1e-6)
		require.NotNil(t, report.BounceRate)
		assert.InDelta(t, 50.0, *report.BounceRate, 1e-9)
		require.NotNil(t, report.AvgTimePerPage)
		assert.InDelta(t, 20.0, *report.AvgTimePerPage, 1e-9)

		assert.Equal(t, []models.InteractionCount{
			{InteractionType: models.InteractionTabSwitch, Count: 4},
			{InteractionType: "click", Count: 1},
		}, report.TopInteractions)

		assert.Equal(t, []models.TabTransition{
			{PreviousTab: "A", CurrentTab: "B", TransitionCount: 1},
			{PreviousTab: "A", CurrentTab: "C", TransitionCount: 1},
			{PreviousTab: "B", CurrentTab: "A", TransitionCount: 1},
		}, report.TabSequences)

		require.Len(t, report.TabMetrics, 3)
		assert.Equal(t, "A", report.TabMetrics[0].TabName)
		assert.Equal(t, 2, report.TabMetrics[0].VisitCount)
		assert.Equal(t, 1, report.TabMetrics[0].UniqueVisitors)
	})

	t.Run("since excludes open sessions in range", func(t *testing.T) {
		since := at(150)
		report, err := engine.GetAggregateMetrics(ctx, &since)
		require.NoError(t, err)

		require.NotNil(t, report.AvgSessionDuration)
		assert.InDelta(t, 200.0, *report.AvgSessionDuration, 1e-6)
		require.NotNil(t, report.AvgTimePerPage)
		assert.InDelta(t, 25.0, *report.AvgTimePerPage, 1e-9)
		// bounce rate is not windowed
		assert.InDelta(t, 50.0, *report.BounceRate, 1e-9)
	})
}

type brokenSource struct {
	*store.MemoryEventStore
}

var errConnReset = errors.New("connection reset")

func (brokenSource) Interactions(ctx context.Context) ([]models.Interaction, error) {
	return nil, &models.StorageError{Op: "query interactions", Err: errConnReset}
}

func TestGetAggregateMetrics_FailsWhole(t *testing.T) {
	metrics := NewMetrics()
	engine := NewEngine(brokenSource{store.NewMemoryEventStore()}, WithMetrics(metrics))

	report, err := engine.GetAggregateMetrics(context.Background(), nil)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, errConnReset)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.queryErrors.WithLabelValues(QueryAggregate)))
}

func TestGetSessionDetail(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryEventStore()
	seedSession(t, st, "s1", at(0), nil)

	require.NoError(t, st.InsertPageView(ctx, &models.PageView{SessionID: "s1", PageURL: "/", ViewTime: at(1)}))
	require.NoError(t, st.InsertMetric(ctx, &models.Metric{SessionID: "s1", MetricName: "fps", MetricValue: 60, RecordedAt: at(2)}))
	require.NoError(t, st.InsertMetric(ctx, &models.Metric{SessionID: "s1", MetricName: "fps", MetricValue: 58, RecordedAt: at(3)}))

	engine := NewEngine(st)

	detail, err := engine.GetSessionDetail(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", detail.Session.SessionID)
	assert.Len(t, detail.PageViews, 1)
	assert.Empty(t, detail.Interactions)
	assert.Len(t, detail.Metrics, 2)

	_, err = engine.GetSessionDetail(ctx, "nope")
	assert.True(t, models.IsNotFound(err))

	_, err = engine.GetSessionDetail(ctx, "")
	assert.True(t, models.IsValidation(err))
}
