// Package app wires the service graph: the shared store client, the account
// and site services, the notification writer, the audit log and the
// per-device control sessions.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/accounts"
	"github.com/hydroguard/hydroguard/internal/aggregate"
	"github.com/hydroguard/hydroguard/internal/config"
	"github.com/hydroguard/hydroguard/internal/control"
	"github.com/hydroguard/hydroguard/internal/loop"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/monitoring"
	"github.com/hydroguard/hydroguard/internal/notify"
	"github.com/hydroguard/hydroguard/internal/repository"
	"github.com/hydroguard/hydroguard/internal/sites"
	"github.com/hydroguard/hydroguard/internal/store"
)

// Service contains all domain services and service-wide dependencies.
type Service struct {
	cfg *config.Config

	Store      store.Client
	Accounts   *accounts.Service
	Sites      *sites.Service
	Notifier   *notify.Writer
	Audit      repository.DecisionLogRepository
	Monitoring *monitoring.Service

	mu       sync.Mutex
	sessions map[string]*control.Session

	feedMu sync.Mutex
	feeds  map[string]*feedHandle
	board  *boardHandle
}

// New creates the service graph on top of an established store client.
// audit may be a NopDecisionLog when no audit database is configured.
func New(cfg *config.Config, client store.Client, audit repository.DecisionLogRepository) *Service {
	notifier := notify.NewWriter(client)
	return &Service{
		cfg:        cfg,
		Store:      client,
		Accounts:   accounts.NewService(cfg.Keycloak, cfg.Feed, client, notifier),
		Sites:      sites.NewService(client),
		Notifier:   notifier,
		Audit:      audit,
		Monitoring: monitoring.NewService(),
		sessions:   make(map[string]*control.Session),
		feeds:      make(map[string]*feedHandle),
	}
}

// Session returns the live control session for deviceID, starting one on
// first use. Sessions are long-lived; they end on CloseSession or shutdown.
func (s *Service) Session(ctx context.Context, deviceID string) *control.Session {
	if deviceID == "" {
		deviceID = s.cfg.Control.DefaultDeviceID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[deviceID]; ok {
		return sess
	}

	presenter := &feedPresenter{
		notifier: s.Notifier,
		scope:    s.cfg.Feed.OperatorScope,
	}
	sess := control.NewSession(deviceID, s.Store, s.cfg.Decision, presenter, auditAdapter{repo: s.Audit})
	sess.OnControlChange(func(st models.ControlState) {
		s.Monitoring.RecordEvent("control.changed", map[string]string{
			"device": st.DeviceID, "mode": string(st.Mode),
		})
	})
	sess.Start(ctx)
	s.sessions[deviceID] = sess
	return sess
}

// CloseSession ends the session for deviceID, if any.
func (s *Service) CloseSession(deviceID string) {
	s.mu.Lock()
	sess, ok := s.sessions[deviceID]
	delete(s.sessions, deviceID)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Feed returns the current rendered notification feed for scope, lazily
// attaching the live subscription on first use.
func (s *Service) Feed(scope string) (aggregate.FeedView, error) {
	if scope == "" {
		scope = s.cfg.Feed.OperatorScope
	}

	s.feedMu.Lock()
	fh, ok := s.feeds[scope]
	if !ok {
		fh = newFeedHandle(s.Store, s.cfg.Feed, scope)
		s.feeds[scope] = fh
	}
	s.feedMu.Unlock()

	return fh.View()
}

// RequestBoard returns the current rendered operator request board, lazily
// attaching the users-collection subscription on first use.
func (s *Service) RequestBoard() (aggregate.BoardView, error) {
	s.feedMu.Lock()
	if s.board == nil {
		s.board = newBoardHandle(s.Store, s.cfg.Feed)
	}
	b := s.board
	s.feedMu.Unlock()

	return b.View()
}

// Close tears down sessions, feeds and the store client.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*control.Session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}

	s.feedMu.Lock()
	for _, fh := range s.feeds {
		fh.Close()
	}
	s.feeds = make(map[string]*feedHandle)
	if s.board != nil {
		s.board.Close()
		s.board = nil
	}
	s.feedMu.Unlock()

	if err := s.Store.Close(); err != nil {
		nuts.L.Warnf("[App] error closing store: %v", err)
	}
}

// feedPresenter surfaces control outcomes as operator notifications. The
// push happens off-loop; a lost notification is logged, never fatal.
type feedPresenter struct {
	notifier *notify.Writer
	scope    string
}

func (p *feedPresenter) Info(message string) {
	nuts.L.Infof("[Control] %s", message)
	go p.push(message, models.LevelInfo)
}

func (p *feedPresenter) Error(message string, err error) {
	nuts.L.Errorf("[Control] %s: %v", message, err)
	go p.push(fmt.Sprintf("%s: %v", message, err), models.LevelError)
}

func (p *feedPresenter) push(message, level string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.notifier.Push(ctx, p.scope, message, level, "", ""); err != nil {
		nuts.L.Warnf("[App] failed to push control notification: %v", err)
	}
}

// auditAdapter bridges the gate's audit sink to the repository.
type auditAdapter struct {
	repo repository.DecisionLogRepository
}

func (a auditAdapter) Record(ctx context.Context, rec models.DecisionRecord) error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Insert(ctx, &rec)
}

// feedHandle runs one scope's notification feed on its own loop. The
// rendered view is loop-confined; View synchronizes through the loop.
type feedHandle struct {
	scope string
	loop  *loop.Loop
	mgr   *store.SubscriptionManager
	view  aggregate.FeedView
}

func newFeedHandle(client store.Client, cfg config.FeedConfig, scope string) *feedHandle {
	l := loop.New()
	fh := &feedHandle{
		scope: scope,
		loop:  l,
		mgr:   store.NewSubscriptionManager(client, l),
	}
	feed := aggregate.NewNotificationFeed(l, cfg, func(v aggregate.FeedView) { fh.view = v })
	fh.mgr.SubscribeChildren(fh.owner(), store.NotificationsPath(scope),
		aggregate.WindowSince(cfg, time.Now()), store.Handler{
			OnEvent: feed.HandleEvent,
			OnError: feed.HandleError,
		})
	return fh
}

func (fh *feedHandle) View() (aggregate.FeedView, error) {
	var v aggregate.FeedView
	err := fh.loop.DispatchWait(func() { v = fh.view })
	return v, err
}

func (fh *feedHandle) Close() {
	fh.mgr.UnsubscribeAll(fh.owner())
	fh.loop.Stop()
}

func (fh *feedHandle) owner() string {
	return "feed:" + fh.scope
}

// boardHandle runs the operator request board on its own loop.
type boardHandle struct {
	loop *loop.Loop
	mgr  *store.SubscriptionManager
	view aggregate.BoardView
}

func newBoardHandle(client store.Client, cfg config.FeedConfig) *boardHandle {
	l := loop.New()
	bh := &boardHandle{
		loop: l,
		mgr:  store.NewSubscriptionManager(client, l),
	}
	board := aggregate.NewRequestBoard(l, cfg, func(v aggregate.BoardView) { bh.view = v })
	bh.mgr.SubscribeChildren("board", store.UsersPath, 0, store.Handler{
		OnEvent: board.HandleEvent,
		OnError: board.HandleError,
	})
	return bh
}

func (bh *boardHandle) View() (aggregate.BoardView, error) {
	var v aggregate.BoardView
	err := bh.loop.DispatchWait(func() { v = bh.view })
	return v, err
}

func (bh *boardHandle) Close() {
	bh.mgr.UnsubscribeAll("board")
	bh.loop.Stop()
}
