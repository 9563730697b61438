package session

import "quizlive/domain"

func (a *sessionActor) handleJoin(cmd joinCommand) {
	err := a.join(cmd.client)
	cmd.reply <- err
	if err != nil {
		a.log.Debug().Err(err).Str("user", cmd.client.userID).Msg("join refused")
	}
}

// join runs the join protocol for a connection. It is idempotent, a joined
// connection sending another join packet only refreshes everyone's view.
func (a *sessionActor) join(c *Client) error {
	s, err := a.load()
	if err != nil {
		return err
	}

	s.UpsertOnJoin(c.userID, c.username, c.id, a.cfg.Now())
	if s.Host == "" {
		s.Host = c.userID
	}

	if err := a.persist(s); err != nil {
		return err
	}

	a.cancelGraceTimer(c.userID)
	_, rejoin := a.clients[c.id]
	a.clients[c.id] = c

	if s.IsStarted {
		a.broadcast(MakePacketScoreboard(s))
	} else {
		a.broadcast(MakePacketWaitingRoom(s))
	}

	var quiz *domain.Quiz
	if s.IsStarted {
		quiz, _ = a.loadQuiz(s.QuizID)
	}
	a.sendTo(c, MakePacketJoined(s, c.userID, quiz))

	if !rejoin {
		a.record(ActivityJoin, c.userID, c.username)
	}
	return nil
}

func (a *sessionActor) handleDetach(c *Client) {
	a.removeClient(c)
}

func (a *sessionActor) handleGraceExpired(cmd graceExpiredCommand) {
	t, ok := a.graceTimers[cmd.userID]
	if !ok || t.generation != cmd.generation {
		return
	}
	delete(a.graceTimers, cmd.userID)

	if a.hasLiveConnection(cmd.userID) {
		return
	}

	s, err := a.load()
	if err != nil {
		a.log.Error().Err(err).Str("user", cmd.userID).Msg("could not load session for departure, retrying later")
		a.armGraceTimer(cmd.userID)
		return
	}

	p := s.Player(cmd.userID)
	if p == nil || !p.Connected {
		return
	}

	s.MarkDisconnected(cmd.userID, a.cfg.Now())
	if s.MigrateHost() {
		a.log.Info().Str("user", cmd.userID).Str("host", s.Host).Msg("host migrated")
	}

	if err := a.persist(s); err != nil {
		a.armGraceTimer(cmd.userID)
		return
	}

	a.broadcast(MakePacketPlayerLeft(p.Username))
	if s.IsStarted {
		a.broadcast(MakePacketScoreboard(s))
		a.broadcast(MakePacketHostUpdated(s.Host))
	} else {
		a.broadcast(MakePacketWaitingRoom(s))
	}
	a.record(ActivityLeave, p.UserID, p.Username)
}
