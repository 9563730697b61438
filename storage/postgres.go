package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"quizlive/domain"
	"quizlive/session"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func (pgr *PostgresRepo) Ping(ctx context.Context) error {
	return pgr.pool.Ping(ctx)
}

func mapError(err error, notFound error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
}

func validId(id string) bool {
	return uuid.Validate(id) == nil
}

func (pgr *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	if !validId(id) {
		return domain.User{}, domain.ErrUserNotFound
	}

	user := domain.User{Id: id}
	err := pgr.pool.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", id).Scan(&user.Username)
	if err != nil {
		return domain.User{}, mapError(err, domain.ErrUserNotFound)
	}
	return user, nil
}

func (pgr *PostgresRepo) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if !validId(quizID) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}

	quiz := domain.Quiz{Id: quizID}
	var questions []byte

	err := pgr.pool.QueryRow(ctx,
		"SELECT title, questions, play_count FROM quizzes WHERE id = $1", quizID,
	).Scan(&quiz.Title, &questions, &quiz.PlayCount)
	if err != nil {
		return domain.Quiz{}, mapError(err, domain.ErrQuizNotFound)
	}

	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: decoding questions: %w", domain.UnexpectedDatabaseError, err)
	}
	return quiz, nil
}

// IncrementPlayCount bumps the completed-play counter in a single statement.
func (pgr *PostgresRepo) IncrementPlayCount(ctx context.Context, quizID string) error {
	if !validId(quizID) {
		return domain.ErrQuizNotFound
	}

	tag, err := pgr.pool.Exec(ctx, "UPDATE quizzes SET play_count = play_count + 1 WHERE id = $1", quizID)
	if err != nil {
		return mapError(err, domain.ErrQuizNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (pgr *PostgresRepo) CreateSession(ctx context.Context, quizID, inviteCode string) (string, error) {
	if !validId(quizID) {
		return "", domain.ErrQuizNotFound
	}

	var id string
	err := pgr.pool.QueryRow(ctx,
		"INSERT INTO sessions(quiz_id, invite_code) VALUES($1, $2) RETURNING id", quizID, inviteCode,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolation:
				return "", domain.ErrDuplicateInviteCode
			case foreignKeyViolation:
				return "", domain.ErrQuizNotFound
			}
		}
		return "", mapError(err, domain.ErrQuizNotFound)
	}
	return id, nil
}

func (pgr *PostgresRepo) GetSessionIdByInviteCode(ctx context.Context, inviteCode string) (string, error) {
	var id string
	err := pgr.pool.QueryRow(ctx, "SELECT id FROM sessions WHERE invite_code = $1", inviteCode).Scan(&id)
	if err != nil {
		return "", mapError(err, domain.ErrSessionNotFound)
	}
	return id, nil
}

func (pgr *PostgresRepo) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	if !validId(id) {
		return nil, domain.ErrSessionNotFound
	}

	s := &session.Session{ID: id}
	var (
		questionStartAt *time.Time
		players         []byte
		skipVotes       []byte
	)

	err := pgr.pool.QueryRow(ctx, `
		SELECT quiz_id, invite_code, host, current_question_index, is_started, is_active,
		       question_start_at, revealed_at, skip_votes, players, started_at, ended_at, created_at
		FROM sessions WHERE id = $1`, id,
	).Scan(
		&s.QuizID, &s.InviteCode, &s.Host, &s.CurrentQuestionIndex, &s.IsStarted, &s.IsActive,
		&questionStartAt, &s.RevealedAt, &skipVotes, &players, &s.StartedAt, &s.EndedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, domain.ErrSessionNotFound)
	}

	if questionStartAt != nil {
		s.QuestionStartAt = *questionStartAt
	}

	if err := json.Unmarshal(players, &s.Players); err != nil {
		return nil, fmt.Errorf("%w: decoding players: %w", domain.UnexpectedDatabaseError, err)
	}
	for _, p := range s.Players {
		if p.Answered == nil {
			p.Answered = map[string]bool{}
		}
	}

	var voters []string
	if err := json.Unmarshal(skipVotes, &voters); err != nil {
		return nil, fmt.Errorf("%w: decoding skip votes: %w", domain.UnexpectedDatabaseError, err)
	}
	s.SkipVotes = make(map[string]bool, len(voters))
	for _, v := range voters {
		s.SkipVotes[v] = true
	}

	return s, nil
}

func (pgr *PostgresRepo) SaveSession(ctx context.Context, s *session.Session) error {
	if !validId(s.ID) {
		return domain.ErrSessionNotFound
	}

	players := s.Players
	if players == nil {
		players = []*session.Player{}
	}
	encodedPlayers, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("%w: encoding players: %w", domain.UnexpectedDatabaseError, err)
	}

	voters := make([]string, 0, len(s.SkipVotes))
	for v := range s.SkipVotes {
		voters = append(voters, v)
	}
	slices.Sort(voters)
	encodedVotes, err := json.Marshal(voters)
	if err != nil {
		return fmt.Errorf("%w: encoding skip votes: %w", domain.UnexpectedDatabaseError, err)
	}

	var questionStartAt *time.Time
	if !s.QuestionStartAt.IsZero() {
		questionStartAt = &s.QuestionStartAt
	}

	tag, err := pgr.pool.Exec(ctx, `
		UPDATE sessions SET
			host = $2, current_question_index = $3, is_started = $4, is_active = $5,
			question_start_at = $6, revealed_at = $7, skip_votes = $8, players = $9,
			started_at = $10, ended_at = $11, updated_at = now()
		WHERE id = $1`,
		s.ID, s.Host, s.CurrentQuestionIndex, s.IsStarted, s.IsActive,
		questionStartAt, s.RevealedAt, string(encodedVotes), string(encodedPlayers),
		s.StartedAt, s.EndedAt,
	)
	if err != nil {
		return mapError(err, domain.ErrSessionNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (pgr *PostgresRepo) AppendActivity(ctx context.Context, entry session.ActivityEntry) error {
	_, err := pgr.pool.Exec(ctx,
		"INSERT INTO session_activity(session_id, kind, user_id, username, created_at) VALUES($1, $2, $3, $4, $5)",
		entry.SessionID, string(entry.Kind), entry.UserID, entry.Username, entry.At,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.ErrSessionNotFound
		}
		return mapError(err, domain.ErrSessionNotFound)
	}
	return nil
}
