package chatsvc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rzbill/relay/internal/errs"
	"github.com/rzbill/relay/internal/event"
	"github.com/rzbill/relay/internal/eventlog"
	"github.com/rzbill/relay/internal/presence"
	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// Deps are the room components the service drives.
type Deps struct {
	Log      *eventlog.Log
	Presence *presence.Manager
	Factory  event.Factory

	PollInterval time.Duration
	KeepAlive    time.Duration
	StoreTimeout time.Duration
	WakeOnAppend bool
}

// Service turns producer requests into events and serves them to pollers
// and streams.
type Service struct {
	log      *eventlog.Log
	presence *presence.Manager
	factory  event.Factory
	logger   logpkg.Logger

	pollInterval time.Duration
	keepAlive    time.Duration
	storeTimeout time.Duration
	wakeOnAppend bool

	streamsMu sync.Mutex
	streams   map[string]*streamConn

	now func() time.Time
}

// New returns a Service over the runtime's components, tuned by its config.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	cfg := rt.Config()
	return NewWithDeps(Deps{
		Log:          rt.Log(),
		Presence:     rt.Presence(),
		Factory:      rt.Factory(),
		PollInterval: cfg.PollInterval(),
		KeepAlive:    cfg.KeepAliveInterval(),
		StoreTimeout: cfg.StoreTimeout(),
		WakeOnAppend: cfg.Stream.WakeOnAppend,
	}, logger)
}

// NewWithDeps builds a Service from explicit components.
func NewWithDeps(d Deps, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("chat"))
	}
	if d.PollInterval <= 0 {
		d.PollInterval = 3 * time.Second
	}
	if d.KeepAlive <= 0 {
		d.KeepAlive = 10 * d.PollInterval
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = 5 * time.Second
	}
	return &Service{
		log:          d.Log,
		presence:     d.Presence,
		factory:      d.Factory,
		logger:       logger,
		pollInterval: d.PollInterval,
		keepAlive:    d.KeepAlive,
		storeTimeout: d.StoreTimeout,
		wakeOnAppend: d.WakeOnAppend,
		streams:      map[string]*streamConn{},
		now:          time.Now,
	}
}

// Join adds name to the room and records a join event. A name already
// present is rejected with errs.ErrUsernameTaken.
func (s *Service) Join(ctx context.Context, name string) (JoinResult, error) {
	name, err := s.factory.NormalizeUsername(name)
	if err != nil {
		return JoinResult{}, err
	}
	if err := s.presence.Join(ctx, name); err != nil {
		return JoinResult{}, err
	}
	ev, err := s.log.Append(ctx, s.factory.MakeJoin(name))
	if err != nil {
		// keep presence and log consistent: no join event, no member
		if _, rbErr := s.presence.Leave(ctx, name); rbErr != nil {
			s.logger.Error("join rollback failed", logpkg.Str("user", name), logpkg.Err(rbErr))
		}
		return JoinResult{}, err
	}
	count, err := s.presence.Count(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	s.logger.Info("user joined", logpkg.Str("user", name), logpkg.Uint64("id", ev.ID), logpkg.Int("users", count))
	return JoinResult{MessageID: ev.ID, UserCount: count}, nil
}

// Leave removes name from the room. The leave event is only written when
// the name was present; leaving twice is not an error. When the event
// cannot be stored the member is restored, so a retry writes it.
func (s *Service) Leave(ctx context.Context, name string) (LeaveResult, error) {
	name, err := s.factory.SenderName(name)
	if err != nil {
		return LeaveResult{}, err
	}
	wasPresent, err := s.presence.Leave(ctx, name)
	if err != nil {
		return LeaveResult{}, err
	}
	var res LeaveResult
	if wasPresent {
		ev, err := s.log.Append(ctx, s.factory.MakeLeave(name))
		if err != nil {
			if rbErr := s.presence.AddImplicit(ctx, name); rbErr != nil {
				s.logger.Error("leave rollback failed", logpkg.Str("user", name), logpkg.Err(rbErr))
			}
			return LeaveResult{}, err
		}
		res.MessageID = ev.ID
	}
	if res.UserCount, err = s.presence.Count(ctx); err != nil {
		return LeaveResult{}, err
	}
	if wasPresent {
		s.logger.Info("user left", logpkg.Str("user", name), logpkg.Uint64("id", res.MessageID), logpkg.Int("users", res.UserCount))
	}
	return res, nil
}

// PostMessage records a message from name. A name that never joined is
// added to presence after the message is stored. Once the message is
// committed it is returned even if that registration fails, since a retry
// would store it twice.
func (s *Service) PostMessage(ctx context.Context, name, text string) (event.Event, error) {
	name, err := s.factory.SenderName(name)
	if err != nil {
		return event.Event{}, err
	}
	ev, err := s.factory.MakeMessage(name, text)
	if err != nil {
		return event.Event{}, err
	}
	ev, err = s.log.Append(ctx, ev)
	if err != nil {
		return event.Event{}, err
	}
	if err := s.presence.AddImplicit(ctx, name); err != nil {
		s.logger.Warn("implicit join failed", logpkg.Str("user", name), logpkg.Uint64("id", ev.ID), logpkg.Err(err))
	}
	s.logger.Debug("message posted", logpkg.Str("user", name), logpkg.Uint64("id", ev.ID))
	return ev, nil
}

// Send dispatches a combined producer request by action.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	switch action {
	case ActionJoin:
		r, err := s.Join(ctx, req.Username)
		return SendResult(r), err
	case ActionLeave:
		r, err := s.Leave(ctx, req.Username)
		return SendResult(r), err
	case "", ActionMessage:
		ev, err := s.PostMessage(ctx, req.Username, req.Message)
		if err != nil {
			return SendResult{}, err
		}
		count, err := s.presence.Count(ctx)
		if err != nil {
			return SendResult{}, err
		}
		return SendResult{MessageID: ev.ID, UserCount: count}, nil
	default:
		return SendResult{}, errs.ErrUnknownAction
	}
}

// GetUpdates returns the retained events newer than watermark along with
// the presence snapshot. It has no side effects.
func (s *Service) GetUpdates(ctx context.Context, watermark uint64, opts PollOptions) (Updates, error) {
	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return Updates{}, err
	}
	snap, err := s.log.View(ctx)
	if err != nil {
		return Updates{}, err
	}
	return Updates{
		Events:     filter.apply(snap.Since(watermark)),
		UserCount:  len(snap.Members),
		Users:      snap.Members,
		HighestID:  snap.HighestID,
		ServerTime: s.now().UTC(),
	}, nil
}

// Clear drops every retained event and the presence set. Ids keep
// increasing afterwards.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.log.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("room cleared")
	return nil
}

// Stats summarizes the room and its open streams.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	snap, err := s.log.View(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Streams:        s.ActiveStreams(),
		UserCount:      len(snap.Members),
		LastMessageID:  snap.HighestID,
		Retained:       snap.Retained,
		CorruptSkipped: s.log.CorruptSkipped(),
	}, nil
}

// ActiveStreams returns the number of open streams.
func (s *Service) ActiveStreams() int {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	return len(s.streams)
}

func (s *Service) addStream(c *streamConn) {
	s.streamsMu.Lock()
	s.streams[c.id] = c
	s.streamsMu.Unlock()
}

func (s *Service) removeStream(c *streamConn) {
	s.streamsMu.Lock()
	delete(s.streams, c.id)
	s.streamsMu.Unlock()
}
