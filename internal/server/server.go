// Package server exposes cursor sessions over gRPC and HTTP.
//
// What: A session owns one dynsql.Session (its own database handle and cursor
// registry). Clients open a session, send cursor operations with Call and
// close it again.
// How: Both transports share the request and response types below; gRPC uses
// a JSON codec and a hand-written service descriptor, HTTP the same JSON
// bodies. Calls on one session are serialised by the session mutex. A cron
// job closes sessions that stay idle too long.
// Why: Cursor state lives between calls, so a stateless query endpoint is not
// enough.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/SimonWaldherr/dynsql"
	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/logger"
	"github.com/SimonWaldherr/dynsql/internal/script"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// ErrUnknownSession is reported for calls on closed or unknown sessions.
var ErrUnknownSession = errors.New("unknown session")

// Options configures a Server.
type Options struct {
	Driver      string
	DSN         string
	Placeholder engine.PlaceholderStyle
	MaxCursors  int
	FetchBatch  int
	// SessionIdle is the idle time after which Reap closes a session.
	SessionIdle time.Duration
	Log         *logger.Logger
}

type session struct {
	mu   sync.Mutex
	id   string
	db   *dynsql.Session
	run  *script.Runner
	last time.Time
}

// Server holds the open sessions.
type Server struct {
	opts Options
	log  *logger.Logger
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	cron     *cron.Cron
	started  time.Time
}

// New returns a server without sessions.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logger.NewNop()
	}
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = 15 * time.Minute
	}
	return &Server{
		opts:     opts,
		log:      opts.Log.Named("server"),
		now:      time.Now,
		sessions: make(map[string]*session),
		started:  time.Now(),
	}
}

// ============================================================================
// Wire types
// ============================================================================

type OpenRequest struct {
	FetchBatch int `json:"fetch_batch,omitempty"`
}

type OpenResponse struct {
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}

type CloseRequest struct {
	Session string `json:"session"`
}

type CloseResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type CallRequest struct {
	Session string `json:"session"`
	script.Step
}

// WireValue is a typed scalar, as accepted by types.Decode.
type WireValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type WireArray struct {
	Type   string      `json:"type"`
	Lower  int         `json:"lower"`
	Values []WireValue `json:"values"`
}

type CallResponse struct {
	Count    *int64     `json:"count,omitempty"`
	Text     string     `json:"text,omitempty"`
	Value    *WireValue `json:"value,omitempty"`
	Array    *WireArray `json:"array,omitempty"`
	Error    string     `json:"error,omitempty"`
	Duration string     `json:"duration"`
}

// ============================================================================
// Operations
// ============================================================================

// OpenSession connects a new session to the configured database.
func (s *Server) OpenSession(ctx context.Context, req *OpenRequest) (*OpenResponse, error) {
	batch := s.opts.FetchBatch
	if req.FetchBatch > 0 {
		batch = req.FetchBatch
	}
	id := uuid.NewString()
	log := s.opts.Log.With("session", id)
	db, err := dynsql.Open(ctx, s.opts.Driver, s.opts.DSN,
		dynsql.WithPlaceholder(s.opts.Placeholder),
		dynsql.WithMaxCursors(s.opts.MaxCursors),
		dynsql.WithFetchBatch(batch),
		dynsql.WithLogger(log),
	)
	if err != nil {
		s.log.Warn("open session failed", "error", err)
		return &OpenResponse{Error: err.Error()}, nil
	}
	sess := &session{id: id, db: db, run: script.NewRunner(db, nil, log), last: s.now()}
	s.mu.Lock()
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.log.Info("session opened", "session", id, "sessions", n)
	return &OpenResponse{Session: id}, nil
}

// CloseSession closes a session and its cursors.
func (s *Server) CloseSession(_ context.Context, req *CloseRequest) (*CloseResponse, error) {
	s.mu.Lock()
	sess, ok := s.sessions[req.Session]
	delete(s.sessions, req.Session)
	s.mu.Unlock()
	if !ok {
		return &CloseResponse{Error: errors.Wrap(ErrUnknownSession, req.Session).Error()}, nil
	}
	if err := s.closeSession(sess, "closed"); err != nil {
		return &CloseResponse{Error: err.Error()}, nil
	}
	return &CloseResponse{Success: true}, nil
}

func (s *Server) closeSession(sess *session, reason string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.run.CloseCursors()
	err := sess.db.Close()
	s.log.Info("session "+reason, "session", sess.id)
	return err
}

func (s *Server) lookup(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Call performs one cursor operation in a session. Cursors are named by the
// client; the names are local to the session.
func (s *Server) Call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	start := s.now()
	sess, ok := s.lookup(req.Session)
	if !ok {
		return &CallResponse{Error: errors.Wrap(ErrUnknownSession, req.Session).Error()}, nil
	}
	sess.mu.Lock()
	got, err := sess.run.Do(ctx, &req.Step)
	sess.last = s.now()
	sess.mu.Unlock()

	resp := &CallResponse{}
	if err != nil {
		s.log.Debug("call failed", "session", sess.id, "op", req.Op, "error", err)
		resp.Error = err.Error()
	} else if err := encodeResult(sess.db.Catalog(), got, resp); err != nil {
		resp.Error = err.Error()
	}
	resp.Duration = s.now().Sub(start).String()
	return resp, nil
}

func encodeResult(cat types.Catalog, got any, resp *CallResponse) error {
	switch g := got.(type) {
	case nil:
	case int64:
		resp.Count = &g
	case string:
		resp.Text = g
	case types.Value:
		wv, err := encodeValue(cat, g)
		if err != nil {
			return err
		}
		resp.Value = &wv
	case *types.Array:
		wa := &WireArray{Lower: g.Lower, Values: make([]WireValue, 0, g.Len())}
		if ti, err := cat.Type(g.Elem); err == nil {
			wa.Type = ti.Name
		}
		for _, e := range g.Elems {
			wv, err := encodeValue(cat, e)
			if err != nil {
				return err
			}
			wa.Values = append(wa.Values, wv)
		}
		resp.Array = wa
	default:
		return errors.Errorf("cannot encode result of type %T", got)
	}
	return nil
}

func encodeValue(cat types.Catalog, v types.Value) (WireValue, error) {
	name, payload, err := types.Encode(cat, v)
	if err != nil {
		return WireValue{}, err
	}
	return WireValue{Type: name, Value: payload}, nil
}

// ============================================================================
// Idle sessions
// ============================================================================

// Reap closes sessions idle for longer than Options.SessionIdle and returns
// how many it closed.
func (s *Server) Reap() int {
	cutoff := s.now().Add(-s.opts.SessionIdle)
	var idle []*session
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := sess.last.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range idle {
		if err := s.closeSession(sess, "reaped"); err != nil {
			s.log.Warn("closing idle session", "session", sess.id, "error", err)
		}
	}
	return len(idle)
}

// StartReaper runs Reap on a cron schedule such as "@every 1m".
func (s *Server) StartReaper(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.Reap() }); err != nil {
		return errors.Wrapf(err, "server: reap schedule %q", schedule)
	}
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()
	s.log.Info("session reaper started", "schedule", schedule, "idle", s.opts.SessionIdle.String())
	return nil
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the reaper and closes every session.
func (s *Server) Close() error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	var first error
	for _, sess := range all {
		if err := s.closeSession(sess, "closed"); err != nil && first == nil {
			first = err
		}
	}
	return first
}
