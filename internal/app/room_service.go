package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

// RoomStore persists one serialized room per active room ID, with a TTL so
// abandoned rooms self-clean. It is the sole source of truth for room state.
type RoomStore interface {
	Save(ctx context.Context, room *domain.Room) error
	Load(ctx context.Context, roomID string) (*domain.Room, error)
	Exists(ctx context.Context, roomID string) (bool, error)
	Delete(ctx context.Context, roomID string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// LeaderboardRepository receives the write-once record of a finished room. It
// is never queried by this service.
type LeaderboardRepository interface {
	Insert(ctx context.Context, record domain.LeaderboardRecord) error
}

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxCodeAttempts  = 10
)

// RoomService owns the room lifecycle: creation, joins, the question state
// machine, vote aggregation and scoring, and termination. Every mutating
// operation runs a load-mutate-save cycle against the RoomStore under a
// per-room lock, so concurrent votes and ticks for one room serialize while
// distinct rooms stay independent.
type RoomService struct {
	rooms   RoomStore
	quizzes QuizRepository
	boards  LeaderboardRepository
	gateway *Gateway
	ticker  *TickScheduler
	clock   clockwork.Clock
	locks   roomLocks
}

func NewRoomService(rooms RoomStore, quizzes QuizRepository, boards LeaderboardRepository, gateway *Gateway, clock clockwork.Clock) *RoomService {
	s := &RoomService{
		rooms:   rooms,
		quizzes: quizzes,
		boards:  boards,
		gateway: gateway,
		clock:   clock,
	}
	s.ticker = newTickScheduler(clock, time.Second, s.tick)
	return s
}

// Ticker exposes the scheduler for lifecycle management and tests.
func (s *RoomService) Ticker() *TickScheduler {
	return s.ticker
}

// Close stops all pending tick chains.
func (s *RoomService) Close() {
	s.ticker.Stop()
}

// CreateRoom loads the quiz, allocates a collision-free short code and
// persists a lobby-phase room. Returns the room code.
func (s *RoomService) CreateRoom(ctx context.Context, hostConnectionID, quizID, hostIdentity string) (string, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			return "", err
		}
		taken, err := s.rooms.Exists(ctx, code)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		room := domain.NewRoom(code, hostConnectionID, hostIdentity, quiz)
		if err := s.rooms.Save(ctx, room); err != nil {
			return "", err
		}
		log.Info().Str("room_id", code).Str("quiz_id", quizID).Msg("room created")
		return code, nil
	}
	return "", fmt.Errorf("room code space exhausted after %d attempts", maxCodeAttempts)
}

// JoinRoom registers a participant and returns the full roster for the joining
// connection. Everyone already in the room receives a single-entry delta
// instead of the whole roster. Joining twice is a no-op.
func (s *RoomService) JoinRoom(ctx context.Context, connectionID, roomID, displayName string) (RosterPayload, error) {
	roomID = NormalizeRoomID(roomID)
	defer s.locks.lock(roomID)()

	room, err := s.rooms.Load(ctx, roomID)
	if err != nil {
		return RosterPayload{}, err
	}

	p, added := room.AddParticipant(connectionID, displayName)
	if !added {
		return rosterPayload(room), nil
	}
	if err := s.rooms.Save(ctx, room); err != nil {
		return RosterPayload{}, err
	}

	s.gateway.Publish(roomID, Event{
		Type:    EventPlayerJoined,
		Exclude: connectionID,
		Payload: PlayerJoinedPayload{
			PlayerCount: len(room.Participants),
			Player: domain.Standing{
				ConnectionID: p.ConnectionID,
				DisplayName:  p.DisplayName,
				Score:        p.Score,
			},
		},
	})
	log.Info().Str("room_id", roomID).Str("name", displayName).Msg("participant joined")
	return rosterPayload(room), nil
}

// ReconnectHost rebinds the host connection after verifying the host identity
// and returns the snapshot events the reconnected UI needs to resume: roster,
// and when a question is selected its content, plus the countdown and live
// tally while it is running.
func (s *RoomService) ReconnectHost(ctx context.Context, connectionID, roomID, hostIdentity string) ([]Event, error) {
	roomID = NormalizeRoomID(roomID)
	defer s.locks.lock(roomID)()

	room, err := s.rooms.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostIdentity != hostIdentity {
		return nil, domain.ErrUnauthorized
	}

	room.HostConnectionID = connectionID
	if err := s.rooms.Save(ctx, room); err != nil {
		return nil, err
	}

	events := []Event{{Type: EventRoster, Payload: rosterPayload(room)}}
	if q, ok := room.CurrentQuestion(); ok {
		events = append(events, Event{Type: EventNewQuestion, Payload: questionPayload(room, q)})
		if room.Phase == domain.PhaseQuestionActive {
			events = append(events,
				Event{Type: EventTick, Payload: TickPayload{SecondsRemaining: room.SecondsRemaining}},
				Event{Type: EventLiveStats, Payload: TallyPayload{Counts: room.Tally()}},
			)
		}
	}
	log.Info().Str("room_id", roomID).Msg("host reconnected")
	return events, nil
}

// StartQuestion advances the room to its next question and starts the
// countdown. Called with the last question already played, it instead closes
// the quiz: the leaderboard record is persisted (exactly once) and final
// standings broadcast, while the room record stays readable until its TTL.
func (s *RoomService) StartQuestion(ctx context.Context, connectionID, roomID string) error {
	roomID = NormalizeRoomID(roomID)
	defer s.locks.lock(roomID)()

	room, err := s.rooms.Load(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostConnectionID != connectionID {
		return domain.ErrUnauthorized
	}

	if room.Phase == domain.PhaseQuizEnded {
		// Already closed; rebroadcast standings without a second record.
		s.gateway.Publish(roomID, Event{Type: EventQuizEnd, Payload: StandingsPayload{Leaderboard: room.Standings()}})
		return nil
	}

	if room.CurrentQuestionIndex+1 >= len(room.Quiz.Questions) {
		return s.finishQuiz(ctx, room)
	}

	room.CurrentQuestionIndex++
	room.Phase = domain.PhaseQuestionActive
	room.Votes = make(map[string]string)
	q := room.Quiz.Questions[room.CurrentQuestionIndex]
	room.SecondsRemaining = q.TimeLimit()
	if err := s.rooms.Save(ctx, room); err != nil {
		return err
	}

	s.gateway.Publish(roomID, Event{Type: EventNewQuestion, Payload: questionPayload(room, q)})
	s.ticker.Schedule(roomID)
	log.Info().Str("room_id", roomID).Int("question", room.CurrentQuestionIndex+1).Msg("question started")
	return nil
}

func (s *RoomService) finishQuiz(ctx context.Context, room *domain.Room) error {
	s.ticker.Cancel(room.ID)

	record := room.LeaderboardRecord(s.clock.Now())
	if err := s.boards.Insert(ctx, record); err != nil {
		return fmt.Errorf("persist leaderboard: %w", err)
	}

	room.Phase = domain.PhaseQuizEnded
	if err := s.rooms.Save(ctx, room); err != nil {
		return err
	}

	s.gateway.Publish(room.ID, Event{Type: EventQuizEnd, Payload: StandingsPayload{Leaderboard: room.Standings()}})
	log.Info().Str("room_id", room.ID).Msg("quiz ended")
	return nil
}

// SubmitVote records a participant's vote for the current question. Last
// submission wins. Votes outside an active question, after the deadline, or
// from unknown connections are silently ignored.
func (s *RoomService) SubmitVote(ctx context.Context, connectionID, roomID, optionID string) error {
	roomID = NormalizeRoomID(roomID)
	defer s.locks.lock(roomID)()

	room, err := s.rooms.Load(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Phase != domain.PhaseQuestionActive || room.SecondsRemaining <= 0 {
		return nil
	}
	if _, ok := room.Participant(connectionID); !ok {
		return nil
	}

	room.Votes[connectionID] = optionID
	if err := s.rooms.Save(ctx, room); err != nil {
		return err
	}

	s.gateway.Publish(roomID, Event{Type: EventLiveStats, Payload: TallyPayload{Counts: room.Tally()}})
	return nil
}

// TerminateRoom ends the session immediately: the pending tick is cancelled
// before anything else, the leaderboard record is persisted, final standings
// and a termination signal broadcast, and the room record deleted. A room that
// already reached quiz end is read-only and left to expire.
func (s *RoomService) TerminateRoom(ctx context.Context, connectionID, roomID string) error {
	roomID = NormalizeRoomID(roomID)
	defer s.locks.lock(roomID)()

	room, err := s.rooms.Load(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostConnectionID != connectionID {
		return domain.ErrUnauthorized
	}
	if room.Phase == domain.PhaseQuizEnded {
		return nil
	}

	s.ticker.Cancel(roomID)

	room.Phase = domain.PhaseTerminated
	record := room.LeaderboardRecord(s.clock.Now())
	if err := s.boards.Insert(ctx, record); err != nil {
		return fmt.Errorf("persist leaderboard: %w", err)
	}

	s.gateway.Publish(roomID,
		Event{Type: EventQuizEnd, Payload: StandingsPayload{Leaderboard: room.Standings()}},
		Event{Type: EventTerminated, Payload: struct{}{}},
	)

	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	log.Info().Str("room_id", roomID).Msg("room terminated")
	return nil
}

// tick is one countdown step, invoked by the scheduler. It re-reads the room
// from the store so a process restart mid-question resumes from persisted
// state. Returns true while the chain should continue.
func (s *RoomService) tick(ctx context.Context, roomID string) bool {
	defer s.locks.lock(roomID)()

	room, err := s.rooms.Load(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return false
	}
	if err != nil {
		// Store hiccup: keep the chain alive and retry next second.
		log.Warn().Err(err).Str("room_id", roomID).Msg("tick load failed")
		return true
	}
	if room.Phase != domain.PhaseQuestionActive {
		return false
	}

	if room.SecondsRemaining > 0 {
		room.SecondsRemaining--
	}
	if room.SecondsRemaining > 0 {
		if err := s.rooms.Save(ctx, room); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("tick save failed")
			return true
		}
		s.gateway.Publish(roomID, Event{Type: EventTick, Payload: TickPayload{SecondsRemaining: room.SecondsRemaining}})
		return true
	}

	if err := s.endQuestion(ctx, room); err != nil {
		// Nothing was persisted; the next tick re-runs the transition.
		log.Warn().Err(err).Str("room_id", roomID).Msg("question end failed")
		return true
	}
	return false
}

// endQuestion scores the round and moves the room to QUESTION_ENDED. Scored
// questions award points per correct vote; polls record every vote as correct.
// Participants who never voted get no answer record and no penalty.
func (s *RoomService) endQuestion(ctx context.Context, room *domain.Room) error {
	q, ok := room.CurrentQuestion()
	if !ok {
		return fmt.Errorf("no current question for room %s", room.ID)
	}

	isPoll := q.Kind == domain.KindUnscored
	for connectionID, optionID := range room.Votes {
		p, ok := room.Participant(connectionID)
		if !ok {
			continue
		}
		correct := true
		if !isPoll {
			correct = optionID == q.CorrectOptionID
			if correct {
				p.Score += domain.PointsPerCorrectAnswer
			}
		}
		p.Answers = append(p.Answers, domain.AnswerRecord{
			QuestionID: q.ID,
			OptionID:   optionID,
			Correct:    correct,
		})
	}

	room.SecondsRemaining = 0
	room.Phase = domain.PhaseQuestionEnded
	if err := s.rooms.Save(ctx, room); err != nil {
		return err
	}

	var correctOption *string
	if !isPoll {
		correctOption = &q.CorrectOptionID
	}
	s.gateway.Publish(room.ID,
		Event{Type: EventTick, Payload: TickPayload{SecondsRemaining: 0}},
		Event{Type: EventQuestionEnd, Payload: QuestionEndedPayload{
			CorrectOptionID: correctOption,
			IsPoll:          isPoll,
			Leaderboard:     room.Standings(),
			Tally:           room.Tally(),
		}},
	)
	log.Info().Str("room_id", room.ID).Str("question_id", q.ID).Msg("question ended")
	return nil
}

// NormalizeRoomID maps a user-typed room code to its canonical form; codes are
// case-insensitive by convention.
func NormalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

func newRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// roomLocks hands out one mutex per room ID so all mutating operations for a
// room serialize in-process.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *roomLocks) lock(roomID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[roomID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[roomID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
