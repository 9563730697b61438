package session

import (
	"context"
	"encoding/json"
	"quizlive/domain"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- WebsocketConnection ---

type MockWebsocketConnection struct {
	mock.Mock
}

func (m *MockWebsocketConnection) Close(reason string) {
	m.Called(reason)
}

func (m *MockWebsocketConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockWebsocketConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWebsocketConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- QuizStore ---

type MockQuizStore struct {
	mock.Mock
}

func (m *MockQuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	args := m.Called(ctx, quizID)
	return args.Get(0).(domain.Quiz), args.Error(1)
}

func (m *MockQuizStore) IncrementPlayCount(ctx context.Context, quizID string) error {
	args := m.Called(ctx, quizID)
	return args.Error(0)
}

// --- UserGetter ---

type MockUserGetter struct {
	mock.Mock
}

func (m *MockUserGetter) GetUserById(ctx context.Context, id string) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

// --- SessionCreator ---

type MockSessionCreator struct {
	mock.Mock
}

func (m *MockSessionCreator) CreateSession(ctx context.Context, quizID, inviteCode string) (string, error) {
	args := m.Called(ctx, quizID, inviteCode)
	return args.String(0), args.Error(1)
}

func (m *MockSessionCreator) GetSessionIdByInviteCode(ctx context.Context, inviteCode string) (string, error) {
	args := m.Called(ctx, inviteCode)
	return args.String(0), args.Error(1)
}

// --- InviteCodeGenerator ---

type MockInviteCodeGenerator struct {
	mock.Mock
}

func (m *MockInviteCodeGenerator) Generate() string {
	args := m.Called()
	return args.String(0)
}

// --- sessionRouter ---

type MockRouter struct {
	mock.Mock
}

func (m *MockRouter) Deliver(sessionID string, from *Client, packet ClientPacket) {
	m.Called(sessionID, from, packet)
}

func (m *MockRouter) Detach(sessionID string, from *Client) {
	m.Called(sessionID, from)
}

func (m *MockRouter) Attach(ctx context.Context, sessionID string, client *Client) error {
	args := m.Called(ctx, sessionID, client)
	return args.Error(0)
}

func (m *MockRouter) ExpireQuestion(ctx context.Context, sessionID string, questionIndex int) error {
	args := m.Called(ctx, sessionID, questionIndex)
	return args.Error(0)
}

// --- ActivityLog ---

type MockActivityLog struct {
	mock.Mock
}

func (m *MockActivityLog) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// --- fakes ---

// memoryStore keeps sessions the way a durable store would: connection
// handles are stripped on save and every load hands out a copy.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	saveErr  error
	saves    int
}

func newMemoryStore(sessions ...*Session) *memoryStore {
	m := &memoryStore{sessions: map[string]*Session{}}
	for _, s := range sessions {
		m.sessions[s.ID] = stripConnections(s.Clone())
	}
	return m
}

func stripConnections(s *Session) *Session {
	for _, p := range s.Players {
		p.ConnectionID = ""
	}
	return s
}

func (m *memoryStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memoryStore) SaveSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[s.ID] = stripConnections(s.Clone())
	m.saves++
	return nil
}

func (m *memoryStore) failSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *memoryStore) snapshot(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Clone()
}

type panickingStore struct{}

func (panickingStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	panic("driver exploded")
}

func (panickingStore) SaveSession(ctx context.Context, s *Session) error {
	panic("driver exploded")
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (r *recordingActivity) Record(entry ActivityEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingActivity) kinds() []ActivityKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ActivityKind, 0, len(r.entries))
	for _, e := range r.entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- helpers ---

var testQuiz = domain.Quiz{
	Id:    "quiz-1",
	Title: "Capitals",
	Questions: []domain.Question{
		{Text: "Capital of France?", Answers: []string{"Paris"}},
		{Text: "Capital of Japan?", Answers: []string{"Tokyo"}},
	},
}

func newWaitingSession(id string) *Session {
	return &Session{ID: id, QuizID: testQuiz.Id, InviteCode: "ABC234", SkipVotes: map[string]bool{}}
}

func newQuizStoreMock() *MockQuizStore {
	q := &MockQuizStore{}
	q.On("GetQuiz", mock.Anything, testQuiz.Id).Return(testQuiz, nil)
	return q
}

type receivedPacket struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// received drains everything queued for c so far.
func received(t *testing.T, c *Client) []receivedPacket {
	t.Helper()
	var packets []receivedPacket
	for {
		select {
		case data := <-c.send:
			var p receivedPacket
			require.NoError(t, json.Unmarshal(data, &p))
			packets = append(packets, p)
		default:
			return packets
		}
	}
}

func packetTypes(packets []receivedPacket) []string {
	types := make([]string, 0, len(packets))
	for _, p := range packets {
		types = append(types, p.Type)
	}
	return types
}

func decode[T any](t *testing.T, p receivedPacket) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(p.Data, &v))
	return v
}

func newTestClient(userID, username, sessionID string) *Client {
	return NewClient(userID, username, sessionID, nil)
}
