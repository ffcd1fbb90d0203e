package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clinicscore/drug-advisor/internal/config"
	"github.com/clinicscore/drug-advisor/internal/metrics"
	"github.com/clinicscore/drug-advisor/internal/models"
	"github.com/clinicscore/drug-advisor/internal/utils"
	"github.com/clinicscore/drug-advisor/internal/workflow"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// maxQueuedAlerts bounds the alerts kept for a session between polls.
const maxQueuedAlerts = 32

// ControllerFactory builds a workflow controller that reports to alert.
type ControllerFactory func(alert workflow.AlertFunc) *workflow.Controller

// Session is one clinician's workflow.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Controller *workflow.Controller

	mu     sync.Mutex
	alerts []string
}

func (s *Session) pushAlert(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.alerts) == maxQueuedAlerts {
		s.alerts = s.alerts[1:]
	}
	s.alerts = append(s.alerts, msg)
}

// DrainAlerts returns and clears the pending alerts.
func (s *Session) DrainAlerts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.alerts
	s.alerts = nil
	if out == nil {
		out = []string{}
	}
	return out
}

// SessionService hosts workflow controllers keyed by session id. Sessions idle
// for longer than the configured TTL, or pushed out by capacity, are closed.
type SessionService struct {
	logger        *slog.Logger
	model         *config.Model
	newController ControllerFactory
	sessions      *expirable.LRU[string, *Session]
	latencies     *utils.LatencyWindow
}

// NewSessionService constructs the session registry.
func NewSessionService(logger *slog.Logger, cfg config.SessionsConfig, model *config.Model, factory ControllerFactory) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionService{
		logger:        logger,
		model:         model,
		newController: factory,
		latencies:     utils.NewLatencyWindow(1024),
	}
	s.sessions = expirable.NewLRU[string, *Session](cfg.MaxSessions, s.onEvict, cfg.IdleTTL)
	return s
}

// onEvict runs under the cache lock; it must not call back into s.sessions.
func (s *SessionService) onEvict(id string, session *Session) {
	session.Controller.Close()
	s.logger.Debug("session closed", slog.String("session", id))
}

// Create starts a new workflow and begins loading its deployment list.
func (s *SessionService) Create() *Session {
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	session.Controller = s.newController(session.pushAlert)
	session.Controller.Start()
	s.sessions.Add(session.ID, session)
	metrics.SetActiveSessions(s.sessions.Len())
	s.logger.Info("session created", slog.String("session", session.ID))
	return session
}

// Get returns a live session and refreshes its idle timer.
func (s *SessionService) Get(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok || session.Controller.Closed() {
		return nil, ErrSessionNotFound
	}
	s.sessions.Add(id, session)
	return session, nil
}

// Delete tears a session down.
func (s *SessionService) Delete(id string) error {
	if !s.sessions.Remove(id) {
		return ErrSessionNotFound
	}
	metrics.SetActiveSessions(s.sessions.Len())
	return nil
}

// Do runs op against the session's controller and records its latency.
func (s *SessionService) Do(ctx context.Context, id, op string, fn func(ctx context.Context, c *workflow.Controller) error) (*Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = fn(ctx, session.Controller)
	duration := time.Since(start)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("workflow latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
	if err != nil && !workflow.IsPrecondition(err) && !errors.Is(err, workflow.ErrSuperseded) {
		s.logger.Warn("workflow operation failed",
			slog.String("session", id),
			slog.String("op", op),
			slog.Any("error", err))
	}
	return session, err
}

// Patients lists the configured patients as display cards.
func (s *SessionService) Patients() []models.PatientCard {
	cards := make([]models.PatientCard, 0, len(s.model.Patients))
	for _, p := range s.model.Patients {
		cards = append(cards, p.Card())
	}
	return cards
}

// Len reports the number of live sessions.
func (s *SessionService) Len() int {
	n := s.sessions.Len()
	metrics.SetActiveSessions(n)
	return n
}

// LatencyP95 returns the p95 latency of recent workflow operations.
func (s *SessionService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// Close tears every session down.
func (s *SessionService) Close() {
	s.sessions.Purge()
	metrics.SetActiveSessions(0)
}
