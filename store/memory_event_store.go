package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"climatedash/api/models"
)

var errDuplicateSession = errors.New("session already exists")

// MemoryEventStore is an in-memory EventStore. Thread-safe via RWMutex.
type MemoryEventStore struct {
	mu           sync.RWMutex
	sessions     map[string]*models.Session
	pageViews    []models.PageView
	interactions []models.Interaction
	metrics      []models.Metric
	nextID       int64
}

var _ EventStore = (*MemoryEventStore)(nil)

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		sessions: make(map[string]*models.Session),
	}
}

func (s *MemoryEventStore) CreateSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.SessionID]; exists {
		return &models.StorageError{Op: "create session", Err: errDuplicateSession}
	}

	stored := *sess
	stored.StartTime = sess.StartTime.UTC()
	stored.EndTime = nil
	s.sessions[sess.SessionID] = &stored
	return nil
}

func (s *MemoryEventStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, &models.NotFoundError{Resource: "session", ID: sessionID}
	}
	if sess.EndTime != nil {
		return false, nil
	}

	end := endedAt.UTC()
	if end.Before(sess.StartTime) {
		end = sess.StartTime
	}
	sess.EndTime = &end
	return true, nil
}

func (s *MemoryEventStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

func (s *MemoryEventStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "session", ID: sessionID}
	}
	return copySession(sess), nil
}

func (s *MemoryEventStore) InsertPageView(ctx context.Context, pv *models.PageView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	pv.ID = s.nextID
	stored := *pv
	stored.ViewTime = pv.ViewTime.UTC()
	s.pageViews = append(s.pageViews, stored)
	return nil
}

func (s *MemoryEventStore) InsertInteraction(ctx context.Context, in *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	in.ID = s.nextID
	stored := *in
	stored.InteractionTime = in.InteractionTime.UTC()
	if in.TimeSpent != nil {
		v := *in.TimeSpent
		stored.TimeSpent = &v
	}
	s.interactions = append(s.interactions, stored)
	return nil
}

func (s *MemoryEventStore) InsertMetric(ctx context.Context, m *models.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m.ID = s.nextID
	stored := *m
	stored.RecordedAt = m.RecordedAt.UTC()
	s.metrics = append(s.metrics, stored)
	return nil
}

func (s *MemoryEventStore) EndedSessions(ctx context.Context, since *time.Time) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.EndTime == nil {
			continue
		}
		if since != nil && sess.StartTime.Before(*since) {
			continue
		}
		result = append(result, *copySession(sess))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.Before(result[j].StartTime)
		}
		return result[i].SessionID < result[j].SessionID
	})
	return result, nil
}

func (s *MemoryEventStore) PageViews(ctx context.Context) ([]models.PageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.PageView, len(s.pageViews))
	copy(result, s.pageViews)
	return result, nil
}

func (s *MemoryEventStore) SessionPageViews(ctx context.Context, sessionID string) ([]models.PageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.PageView{}
	for _, pv := range s.pageViews {
		if pv.SessionID == sessionID {
			result = append(result, pv)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ViewTime.Before(result[j].ViewTime)
	})
	return result, nil
}

func (s *MemoryEventStore) Interactions(ctx context.Context) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Interaction, 0, len(s.interactions))
	for _, in := range s.interactions {
		result = append(result, copyInteraction(in))
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if !a.InteractionTime.Equal(b.InteractionTime) {
			return a.InteractionTime.Before(b.InteractionTime)
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (s *MemoryEventStore) SessionInteractions(ctx context.Context, sessionID string) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.Interaction{}
	for _, in := range s.interactions {
		if in.SessionID == sessionID {
			result = append(result, copyInteraction(in))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].InteractionTime.Before(result[j].InteractionTime)
	})
	return result, nil
}

func (s *MemoryEventStore) SessionMetrics(ctx context.Context, sessionID string) ([]models.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.Metric{}
	for _, m := range s.metrics {
		if m.SessionID == sessionID {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return result, nil
}

func copySession(sess *models.Session) *models.Session {
	c := *sess
	if sess.EndTime != nil {
		end := *sess.EndTime
		c.EndTime = &end
	}
	return &c
}

func copyInteraction(in models.Interaction) models.Interaction {
	if in.TimeSpent != nil {
		v := *in.TimeSpent
		in.TimeSpent = &v
	}
	return in
}
