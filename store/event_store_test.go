package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatedash/api/database"
	"climatedash/api/models"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func sec(n int) time.Time { return t0.Add(time.Duration(n) * time.Second) }

func openTestDB(t *testing.T) *database.DBClient {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	client, err := database.NewSQLiteDB("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, InitSchema(context.Background(), client.DB))
	return client
}

func openSQLStore(t *testing.T) EventStore {
	return NewSQLEventStore(openTestDB(t).DB)
}

func openMemoryStore(t *testing.T) EventStore {
	return NewMemoryEventStore()
}

func TestEventStores(t *testing.T) {
	impls := map[string]func(t *testing.T) EventStore{
		"sql":    openSQLStore,
		"memory": openMemoryStore,
	}
	for name, open := range impls {
		t.Run(name, func(t *testing.T) {
			runEventStoreContract(t, open)
		})
	}
}

func runEventStoreContract(t *testing.T, open func(t *testing.T) EventStore) {
	ctx := context.Background()

	t.Run("session lifecycle", func(t *testing.T) {
		s := open(t)
		sess := &models.Session{
			SessionID:  "s1",
			UserAgent:  "ua",
			IPAddress:  "10.0.0.1",
			DeviceType: models.DeviceTablet,
			Browser:    "Safari",
			OS:         "iPadOS",
			StartTime:  sec(0),
		}
		require.NoError(t, s.CreateSession(ctx, sess))

		exists, err := s.SessionExists(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, exists)

		got, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, models.DeviceTablet, got.DeviceType)
		assert.True(t, got.StartTime.Equal(sec(0)))
		assert.Nil(t, got.EndTime)

		ended, err := s.EndSession(ctx, "s1", sec(90))
		require.NoError(t, err)
		assert.True(t, ended)

		ended, err = s.EndSession(ctx, "s1", sec(500))
		require.NoError(t, err)
		assert.False(t, ended)

		got, err = s.GetSession(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got.EndTime)
		assert.True(t, got.EndTime.Equal(sec(90)))
	})

	t.Run("end time never precedes start", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateSession(ctx, &models.Session{SessionID: "s1", DeviceType: models.DeviceDesktop, StartTime: sec(100)}))

		_, err := s.EndSession(ctx, "s1", sec(50))
		require.NoError(t, err)

		got, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, got.EndTime.Equal(sec(100)))
	})

	t.Run("unknown session", func(t *testing.T) {
		s := open(t)

		_, err := s.EndSession(ctx, "ghost", sec(1))
		assert.True(t, models.IsNotFound(err))

		_, err = s.GetSession(ctx, "ghost")
		assert.True(t, models.IsNotFound(err))

		exists, err := s.SessionExists(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("duplicate session id", func(t *testing.T) {
		s := open(t)
		sess := &models.Session{SessionID: "dup", DeviceType: models.DeviceDesktop, StartTime: sec(0)}
		require.NoError(t, s.CreateSession(ctx, sess))
		err := s.CreateSession(ctx, sess)
		assert.True(t, models.IsStorage(err))
	})

	t.Run("ended sessions since", func(t *testing.T) {
		s := open(t)
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.CreateSession(ctx, &models.Session{SessionID: id, DeviceType: models.DeviceDesktop, StartTime: sec(i * 100)}))
		}
		_, err := s.EndSession(ctx, "a", sec(10))
		require.NoError(t, err)
		_, err = s.EndSession(ctx, "c", sec(260))
		require.NoError(t, err)

		all, err := s.EndedSessions(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "a", all[0].SessionID)

		since := sec(100)
		recent, err := s.EndedSessions(ctx, &since)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "c", recent[0].SessionID)
	})

	t.Run("events get increasing ids", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateSession(ctx, &models.Session{SessionID: "s1", DeviceType: models.DeviceDesktop, StartTime: sec(0)}))

		pv := &models.PageView{SessionID: "s1", PageURL: "/", TimeSpent: 3, ScrollDepth: 50, ViewTime: sec(1)}
		require.NoError(t, s.InsertPageView(ctx, pv))
		assert.NotZero(t, pv.ID)

		spent := 2.5
		first := &models.Interaction{SessionID: "s1", InteractionType: models.InteractionTabSwitch, ElementID: "B", InteractionTime: sec(5)}
		second := &models.Interaction{SessionID: "s1", InteractionType: models.InteractionTabSwitch, ElementID: "A", InteractionTime: sec(5), TimeSpent: &spent}
		require.NoError(t, s.InsertInteraction(ctx, first))
		require.NoError(t, s.InsertInteraction(ctx, second))
		assert.Greater(t, second.ID, first.ID)

		m := &models.Metric{SessionID: "s1", MetricName: "fps", MetricValue: 60, RecordedAt: sec(6)}
		require.NoError(t, s.InsertMetric(ctx, m))
		assert.NotZero(t, m.ID)

		interactions, err := s.Interactions(ctx)
		require.NoError(t, err)
		require.Len(t, interactions, 2)
		assert.Equal(t, "B", interactions[0].ElementID, "same instant orders by id")
		assert.Nil(t, interactions[0].TimeSpent)
		require.NotNil(t, interactions[1].TimeSpent)
		assert.Equal(t, 2.5, *interactions[1].TimeSpent)

		views, err := s.SessionPageViews(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, 50.0, views[0].ScrollDepth)
		assert.True(t, views[0].ViewTime.Equal(sec(1)))

		metrics, err := s.SessionMetrics(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, metrics, 1)
		assert.Equal(t, "fps", metrics[0].MetricName)
	})

	t.Run("events without a session are stored", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertPageView(ctx, &models.PageView{SessionID: "orphan", ViewTime: sec(0)}))

		views, err := s.PageViews(ctx)
		require.NoError(t, err)
		assert.Len(t, views, 1)
	})
}

func TestTimestampsKeepMicroseconds(t *testing.T) {
	ts := time.Date(2024, 2, 29, 23, 59, 59, 123456789, time.FixedZone("CET", 3600))
	got := fromMicros(toMicros(ts))
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(ts.Truncate(time.Microsecond)))
}
