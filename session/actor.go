package session

import (
	"context"
	"errors"
	"fmt"
	"quizlive/domain"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultMailboxSize = 1024

var errStorePanic = errors.New("store-panic")

type Config struct {
	GracePeriod  time.Duration
	StoreTimeout time.Duration
	IdleTimeout  time.Duration
	MailboxSize  int
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 3 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 2 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Minute
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = defaultMailboxSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type Recorder interface {
	Record(entry ActivityEntry)
}

type discardActivity struct{}

func (discardActivity) Record(ActivityEntry) {}

type command any

type joinCommand struct {
	client *Client
	reply  chan error
}

type detachCommand struct {
	client *Client
}

type packetCommand struct {
	from   *Client
	packet ClientPacket
}

type graceExpiredCommand struct {
	userID     string
	generation uint64
}

// expireCommand is the external question timer firing. A negative index
// means whatever question is current.
type expireCommand struct {
	questionIndex int
	reply         chan error
}

type delivery struct {
	to   *Client
	data []byte
}

type graceTimer struct {
	timer      *time.Timer
	generation uint64
}

type firstCorrectMarker struct {
	set           bool
	questionIndex int
	userID        string
}

// sessionActor is the single serialization point of one session: every
// mutation, store call and broadcast for the session runs on its goroutine.
type sessionActor struct {
	id       string
	ctx      context.Context
	cfg      Config
	store    SessionStore
	quizzes  QuizStore
	activity Recorder
	log      zerolog.Logger

	mu      sync.Mutex
	mailbox []command
	stopped bool
	wake    chan struct{}
	done    chan struct{}

	current         *Session
	booted          bool
	quiz            *domain.Quiz
	clients         map[string]*Client
	graceTimers     map[string]graceTimer
	timerGeneration uint64
	firstCorrect    firstCorrectMarker
	outbox          []delivery
	lastActivity    time.Time
}

func newSessionActor(ctx context.Context, id string, store SessionStore, quizzes QuizStore, activity Recorder, cfg Config, logger zerolog.Logger) *sessionActor {
	cfg = cfg.withDefaults()
	if activity == nil {
		activity = discardActivity{}
	}
	return &sessionActor{
		id:           id,
		ctx:          ctx,
		cfg:          cfg,
		store:        store,
		quizzes:      quizzes,
		activity:     activity,
		log:          logger.With().Str("session", id).Logger(),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		clients:      map[string]*Client{},
		graceTimers:  map[string]graceTimer{},
		lastActivity: cfg.Now(),
	}
}

func (a *sessionActor) post(cmd command) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrActorStopped
	}
	if len(a.mailbox) >= a.cfg.MailboxSize {
		a.mu.Unlock()
		return ErrSessionBusy
	}
	a.mailbox = append(a.mailbox, cmd)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

func (a *sessionActor) take() []command {
	a.mu.Lock()
	defer a.mu.Unlock()
	cmds := a.mailbox
	a.mailbox = nil
	return cmds
}

// stopIfEmpty marks the actor stopped unless commands are still queued.
func (a *sessionActor) stopIfEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.mailbox) > 0 {
		return false
	}
	a.stopped = true
	return true
}

func (a *sessionActor) run(evict func(*sessionActor) bool) {
	defer close(a.done)

	interval := max(a.cfg.IdleTimeout/2, 10*time.Millisecond)
	idleCheck := time.NewTicker(interval)
	defer idleCheck.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.shutdown("server-shutting-down")
			return
		case <-a.wake:
			a.drain()
		case <-idleCheck.C:
			if a.idle() && evict(a) {
				a.shutdown("")
				return
			}
		}
	}
}

func (a *sessionActor) drain() {
	for {
		cmds := a.take()
		if len(cmds) == 0 {
			return
		}
		for _, cmd := range cmds {
			a.handle(cmd)
			a.flush()
		}
	}
}

func (a *sessionActor) idle() bool {
	return len(a.clients) == 0 &&
		len(a.graceTimers) == 0 &&
		a.cfg.Now().Sub(a.lastActivity) >= a.cfg.IdleTimeout
}

func (a *sessionActor) shutdown(reason string) {
	a.mu.Lock()
	a.stopped = true
	pending := a.mailbox
	a.mailbox = nil
	a.mu.Unlock()

	for _, cmd := range pending {
		switch cmd := cmd.(type) {
		case joinCommand:
			cmd.reply <- ErrActorStopped
		case expireCommand:
			cmd.reply <- ErrActorStopped
		}
	}
	for userID, t := range a.graceTimers {
		t.timer.Stop()
		delete(a.graceTimers, userID)
	}
	for id, c := range a.clients {
		c.Close(reason)
		delete(a.clients, id)
	}
}

func (a *sessionActor) handle(cmd command) {
	a.lastActivity = a.cfg.Now()

	switch cmd := cmd.(type) {
	case joinCommand:
		a.handleJoin(cmd)
	case detachCommand:
		a.handleDetach(cmd.client)
	case packetCommand:
		a.handlePacket(cmd)
	case graceExpiredCommand:
		a.handleGraceExpired(cmd)
	case expireCommand:
		cmd.reply <- a.handleExpire(cmd.questionIndex)
	default:
		a.log.Warn().Type("command", cmd).Msg("unknown command")
	}
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errStorePanic, r)
		}
	}()
	return fn()
}

// load returns a private copy of the last persisted state, reading the store
// only when the cached copy was dropped.
func (a *sessionActor) load() (*Session, error) {
	if a.current == nil {
		ctx, cancel := context.WithTimeout(a.ctx, a.cfg.StoreTimeout)
		defer cancel()

		var loaded *Session
		err := guard(func() error {
			var err error
			loaded, err = a.store.LoadSession(ctx, a.id)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.current = loaded

		if !a.booted {
			a.booted = true
			a.recoverConnections(loaded)
		}
	}
	return a.current.Clone(), nil
}

// recoverConnections treats players persisted as connected by a previous
// process as freshly closed transports.
func (a *sessionActor) recoverConnections(s *Session) {
	for _, p := range s.Players {
		if p.Connected && !a.hasLiveConnection(p.UserID) {
			a.armGraceTimer(p.UserID)
		}
	}
}

func (a *sessionActor) persist(s *Session) error {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.StoreTimeout)
	defer cancel()

	err := guard(func() error { return a.store.SaveSession(ctx, s) })
	if err != nil {
		a.current = nil
		a.log.Error().Err(err).Msg("failed to persist session, update dropped")
		return err
	}
	a.current = s
	return nil
}

func (a *sessionActor) loadQuiz(quizID string) (*domain.Quiz, error) {
	if a.quiz != nil && a.quiz.Id == quizID {
		return a.quiz, nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.StoreTimeout)
	defer cancel()

	var quiz domain.Quiz
	err := guard(func() error {
		var err error
		quiz, err = a.quizzes.GetQuiz(ctx, quizID)
		return err
	})
	if err != nil {
		a.log.Error().Err(err).Str("quiz", quizID).Msg("failed to load quiz content")
		return nil, ErrQuizUnavailable
	}
	a.quiz = &quiz
	return a.quiz, nil
}

func (a *sessionActor) incrementPlayCount(quizID string) {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.StoreTimeout)
	defer cancel()

	err := guard(func() error { return a.quizzes.IncrementPlayCount(ctx, quizID) })
	if err != nil {
		a.log.Error().Err(err).Str("quiz", quizID).Msg("failed to increment play count")
	}
}

func (a *sessionActor) hasLiveConnection(userID string) bool {
	return a.liveConnection(userID) != nil
}

func (a *sessionActor) liveConnection(userID string) *Client {
	for _, c := range a.clients {
		if c.userID == userID {
			return c
		}
	}
	return nil
}

func (a *sessionActor) armGraceTimer(userID string) {
	a.cancelGraceTimer(userID)
	a.timerGeneration++
	generation := a.timerGeneration
	timer := time.AfterFunc(a.cfg.GracePeriod, func() {
		_ = a.post(graceExpiredCommand{userID: userID, generation: generation})
	})
	a.graceTimers[userID] = graceTimer{timer: timer, generation: generation}
}

func (a *sessionActor) cancelGraceTimer(userID string) {
	if t, ok := a.graceTimers[userID]; ok {
		t.timer.Stop()
		delete(a.graceTimers, userID)
	}
}

func (a *sessionActor) removeClient(c *Client) {
	if _, ok := a.clients[c.id]; !ok {
		return
	}
	delete(a.clients, c.id)

	if other := a.liveConnection(c.userID); other != nil {
		if a.current != nil {
			if p := a.current.Player(c.userID); p != nil {
				p.ConnectionID = other.id
			}
		}
		return
	}
	a.armGraceTimer(c.userID)
}

func (a *sessionActor) broadcast(data []byte) {
	for _, c := range a.clients {
		a.outbox = append(a.outbox, delivery{to: c, data: data})
	}
}

func (a *sessionActor) sendTo(c *Client, data []byte) {
	a.outbox = append(a.outbox, delivery{to: c, data: data})
}

func (a *sessionActor) flush() {
	outbox := a.outbox
	a.outbox = nil

	for _, d := range outbox {
		if d.data == nil {
			continue
		}
		if _, ok := a.clients[d.to.id]; !ok {
			continue
		}
		if err := d.to.Send(d.data); err != nil {
			a.log.Warn().Err(err).Str("user", d.to.userID).Str("connection", d.to.id).Msg("dropping connection")
			d.to.Close(err.Error())
			a.removeClient(d.to)
		}
	}
}

func (a *sessionActor) reject(c *Client, action string, err error) {
	a.log.Debug().Err(err).Str("user", c.userID).Str("action", action).Msg("rejected")
	a.sendTo(c, MakePacketRejected(action, err))
}

func (a *sessionActor) record(kind ActivityKind, userID, username string) {
	a.activity.Record(ActivityEntry{
		SessionID: a.id,
		Kind:      kind,
		UserID:    userID,
		Username:  username,
		At:        a.cfg.Now(),
	})
}
