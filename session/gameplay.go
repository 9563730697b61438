package session

import (
	"errors"
	"quizlive/domain"
)

func (a *sessionActor) handlePacket(cmd packetCommand) {
	c := cmd.from
	if _, joined := a.clients[c.id]; !joined {
		return
	}

	switch cmd.packet.Type {
	case PacketJoin:
		if err := a.join(c); err != nil {
			a.log.Debug().Err(err).Str("user", c.userID).Msg("rejoin failed")
		}
	case PacketStart:
		a.handleStart(c)
	case PacketSubmitCorrect:
		a.handleSubmitCorrect(c)
	case PacketVoteSkip:
		a.handleVoteSkip(c)
	case PacketForceSkip:
		a.handleForceSkip(c)
	case PacketNextQuestion:
		a.handleNextQuestion(c)
	default:
		a.log.Debug().Str("type", cmd.packet.Type).Str("user", c.userID).Msg("unknown packet")
	}
}

func (a *sessionActor) handleStart(c *Client) {
	s, err := a.load()
	if err != nil {
		return
	}
	if !s.IsHost(c.userID) {
		a.reject(c, PacketStart, ErrNotHost)
		return
	}
	if s.IsStarted {
		a.reject(c, PacketStart, ErrInvalidTransition)
		return
	}

	quiz, err := a.loadQuiz(s.QuizID)
	if err != nil {
		a.reject(c, PacketStart, err)
		return
	}
	if quiz.TotalQuestions() == 0 {
		a.reject(c, PacketStart, ErrEmptyQuiz)
		return
	}

	now := a.cfg.Now()
	s.IsStarted = true
	s.IsActive = true
	s.StartedAt = &now
	s.QuestionStartAt = now
	s.CurrentQuestionIndex = 0
	s.RevealedAt = nil
	s.SkipVotes = map[string]bool{}

	if err := a.persist(s); err != nil {
		return
	}

	a.firstCorrect = firstCorrectMarker{}
	a.broadcast(MakePacketGameStarted(*quiz, s.Host, now))
}

func (a *sessionActor) handleSubmitCorrect(c *Client) {
	s, err := a.load()
	if err != nil {
		return
	}
	if s.Phase() != PhaseAnswering {
		a.reject(c, PacketSubmitCorrect, ErrInvalidTransition)
		return
	}
	p := s.Player(c.userID)
	if p == nil {
		a.reject(c, PacketSubmitCorrect, ErrPlayerNotFound)
		return
	}

	index := s.CurrentQuestionIndex
	if s.HasAnswered(c.userID, index) {
		a.reject(c, PacketSubmitCorrect, ErrAlreadyAnswered)
		return
	}

	first := !a.firstCorrect.set || a.firstCorrect.questionIndex != index
	if first {
		p.Score += 2
	} else {
		p.Score += 1
	}
	s.RecordAnswered(c.userID, index)

	if err := a.persist(s); err != nil {
		return
	}

	if first {
		a.firstCorrect = firstCorrectMarker{set: true, questionIndex: index, userID: c.userID}
	}
	a.broadcast(MakePacketScoreboard(s))
	a.broadcast(MakePacketPlayerCorrect(p.Username))
	a.record(ActivityCorrect, p.UserID, p.Username)
}

func (a *sessionActor) handleVoteSkip(c *Client) {
	s, err := a.load()
	if err != nil {
		return
	}
	if s.Phase() != PhaseAnswering {
		a.reject(c, PacketVoteSkip, ErrInvalidTransition)
		return
	}
	if s.Player(c.userID) == nil {
		a.reject(c, PacketVoteSkip, ErrPlayerNotFound)
		return
	}
	if !s.AddSkipVote(c.userID) {
		return
	}

	// The reveal rides on the same write as the vote that crossed the threshold.
	var quiz *domain.Quiz
	reveal := s.SkipThresholdReached()
	if reveal {
		if quiz, err = a.loadQuiz(s.QuizID); err != nil {
			a.reject(c, PacketVoteSkip, err)
			return
		}
		now := a.cfg.Now()
		s.RevealedAt = &now
	}

	if err := a.persist(s); err != nil {
		return
	}

	a.broadcast(MakePacketSkipVoteUpdate(len(s.SkipVotes), len(s.Players)))
	if reveal {
		a.broadcast(MakePacketAnswerReveal(answersFor(quiz, s.CurrentQuestionIndex), s.CurrentQuestionIndex, *s.RevealedAt))
	}
}

func (a *sessionActor) handleForceSkip(c *Client) {
	s, err := a.load()
	if err != nil {
		return
	}
	if !s.IsHost(c.userID) {
		a.reject(c, PacketForceSkip, ErrNotHost)
		return
	}
	if err := a.reveal(s); errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrQuizUnavailable) {
		a.reject(c, PacketForceSkip, err)
	}
}

func (a *sessionActor) handleExpire(questionIndex int) error {
	s, err := a.load()
	if err != nil {
		return err
	}
	if questionIndex >= 0 && questionIndex != s.CurrentQuestionIndex {
		return nil
	}
	if s.Phase() != PhaseAnswering {
		return nil
	}
	return a.reveal(s)
}

// reveal moves the current question to REVEALED. Revealing twice is a no-op.
func (a *sessionActor) reveal(s *Session) error {
	switch s.Phase() {
	case PhaseRevealed:
		return nil
	case PhaseAnswering:
	default:
		return ErrInvalidTransition
	}

	quiz, err := a.loadQuiz(s.QuizID)
	if err != nil {
		return err
	}

	now := a.cfg.Now()
	s.RevealedAt = &now
	if err := a.persist(s); err != nil {
		return err
	}

	a.broadcast(MakePacketAnswerReveal(answersFor(quiz, s.CurrentQuestionIndex), s.CurrentQuestionIndex, now))
	return nil
}

func (a *sessionActor) handleNextQuestion(c *Client) {
	s, err := a.load()
	if err != nil {
		return
	}
	if !s.IsHost(c.userID) {
		a.reject(c, PacketNextQuestion, ErrNotHost)
		return
	}
	if s.Phase() != PhaseRevealed {
		a.reject(c, PacketNextQuestion, ErrInvalidTransition)
		return
	}

	quiz, err := a.loadQuiz(s.QuizID)
	if err != nil {
		a.reject(c, PacketNextQuestion, err)
		return
	}

	now := a.cfg.Now()
	s.RevealedAt = nil
	s.SkipVotes = map[string]bool{}
	s.CurrentQuestionIndex++
	s.QuestionStartAt = now

	ended := s.CurrentQuestionIndex >= quiz.TotalQuestions()
	if ended {
		s.IsActive = false
		s.EndedAt = &now
	}

	if err := a.persist(s); err != nil {
		return
	}

	a.firstCorrect = firstCorrectMarker{}
	if ended {
		a.broadcast(MakePacketEnd())
		a.incrementPlayCount(s.QuizID)
		return
	}
	a.broadcast(MakePacketNext(s.CurrentQuestionIndex, now, len(s.Players)))
}

func answersFor(quiz *domain.Quiz, index int) []string {
	if quiz == nil || index < 0 || index >= len(quiz.Questions) {
		return []string{}
	}
	return quiz.Questions[index].Answers
}
