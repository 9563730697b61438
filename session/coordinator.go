package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Coordinator routes connection events to the actor owning each session,
// spawning actors on demand and retiring idle ones.
type Coordinator struct {
	ctx      context.Context
	cfg      Config
	store    SessionStore
	quizzes  QuizStore
	activity Recorder
	log      zerolog.Logger

	locker sync.Mutex
	actors map[string]*sessionActor
	wg     sync.WaitGroup
}

func NewCoordinator(ctx context.Context, store SessionStore, quizzes QuizStore, activity Recorder, cfg Config, logger zerolog.Logger) *Coordinator {
	if activity == nil {
		activity = discardActivity{}
	}
	return &Coordinator{
		ctx:      ctx,
		cfg:      cfg.withDefaults(),
		store:    store,
		quizzes:  quizzes,
		activity: activity,
		log:      logger,
		actors:   map[string]*sessionActor{},
	}
}

func (c *Coordinator) actorFor(sessionID string) (*sessionActor, error) {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.ctx.Err() != nil {
		return nil, ErrActorStopped
	}
	if a, ok := c.actors[sessionID]; ok {
		return a, nil
	}

	a := newSessionActor(c.ctx, sessionID, c.store, c.quizzes, c.activity, c.cfg, c.log)
	c.actors[sessionID] = a
	c.wg.Go(func() { a.run(c.evict) })
	return a, nil
}

func (c *Coordinator) evict(a *sessionActor) bool {
	c.locker.Lock()
	defer c.locker.Unlock()

	if !a.stopIfEmpty() {
		return false
	}
	if c.actors[a.id] == a {
		delete(c.actors, a.id)
	}
	a.log.Debug().Msg("session actor retired")
	return true
}

func (c *Coordinator) post(sessionID string, cmd command) error {
	// an actor may retire between lookup and post; the next lookup spawns a fresh one
	for range 3 {
		a, err := c.actorFor(sessionID)
		if err != nil {
			return err
		}
		err = a.post(cmd)
		if !errors.Is(err, ErrActorStopped) {
			return err
		}
	}
	return ErrActorStopped
}

// Attach runs the join protocol for a new connection and reports whether the
// session accepted it.
func (c *Coordinator) Attach(ctx context.Context, sessionID string, client *Client) error {
	reply := make(chan error, 1)
	if err := c.post(sessionID, joinCommand{client: client, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		c.Detach(sessionID, client)
		return ctx.Err()
	}
}

func (c *Coordinator) Deliver(sessionID string, from *Client, packet ClientPacket) {
	if err := c.post(sessionID, packetCommand{from: from, packet: packet}); err != nil {
		c.log.Warn().Err(err).Str("session", sessionID).Str("user", from.userID).Msg("packet dropped")
	}
}

func (c *Coordinator) Detach(sessionID string, from *Client) {
	if err := c.post(sessionID, detachCommand{client: from}); err != nil {
		c.log.Debug().Err(err).Str("session", sessionID).Str("user", from.userID).Msg("detach dropped")
	}
}

// ExpireQuestion is the entry point of the external question timer. A
// negative index reveals whatever question is current.
func (c *Coordinator) ExpireQuestion(ctx context.Context, sessionID string, questionIndex int) error {
	reply := make(chan error, 1)
	if err := c.post(sessionID, expireCommand{questionIndex: questionIndex, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) ActiveSessions() int {
	c.locker.Lock()
	defer c.locker.Unlock()
	return len(c.actors)
}

// Wait blocks until every actor has exited after the root context is cancelled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
