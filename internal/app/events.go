package app

import "live-quiz-service/internal/domain"

// EventType names a room-scoped event on the wire.
type EventType string

const (
	// EventRoster carries the full participant list, sent to a connection
	// that just joined or reconnected.
	EventRoster EventType = "ROSTER"
	// EventPlayerJoined carries a single-participant delta for everyone else.
	EventPlayerJoined EventType = "PLAYER_JOINED"
	EventNewQuestion  EventType = "NEW_QUESTION"
	EventTick         EventType = "TICK"
	EventLiveStats    EventType = "LIVE_STATS"
	EventQuestionEnd  EventType = "QUESTION_ENDED"
	EventQuizEnd      EventType = "QUIZ_ENDED"
	EventTerminated   EventType = "ROOM_TERMINATED"
	EventError        EventType = "ERROR"
)

// Event is one message fanned out to a room's subscribed connections. Target
// restricts delivery to a single connection; Exclude skips a single
// connection. Both empty means room-wide delivery.
type Event struct {
	Type    EventType
	Payload any
	Target  string
	Exclude string
}

// RosterPayload is the full participant list.
type RosterPayload struct {
	PlayerCount int               `json:"playerCount"`
	Players     []domain.Standing `json:"players"`
}

// PlayerJoinedPayload announces one new participant.
type PlayerJoinedPayload struct {
	PlayerCount int             `json:"playerCount"`
	Player      domain.Standing `json:"player"`
}

// QuestionPayload is the question content minus the correct answer.
type QuestionPayload struct {
	ID             string              `json:"id"`
	Kind           domain.QuestionKind `json:"kind"`
	Text           string              `json:"text"`
	Options        []domain.Option     `json:"options"`
	TimeLimit      int                 `json:"timeLimit"`
	QuestionNumber int                 `json:"questionNumber"`
	TotalQuestions int                 `json:"totalQuestions"`
}

// TickPayload is the countdown value for the active question.
type TickPayload struct {
	SecondsRemaining int `json:"secondsRemaining"`
}

// TallyPayload is the per-option vote count for the current question.
type TallyPayload struct {
	Counts map[string]int `json:"counts"`
}

// QuestionEndedPayload carries round results. CorrectOptionID is nil for polls.
type QuestionEndedPayload struct {
	CorrectOptionID *string           `json:"correctOptionId"`
	IsPoll          bool              `json:"isPoll"`
	Leaderboard     []domain.Standing `json:"leaderboard"`
	Tally           map[string]int    `json:"tally"`
}

// StandingsPayload carries final standings at quiz end or termination.
type StandingsPayload struct {
	Leaderboard []domain.Standing `json:"leaderboard"`
}

// ErrorPayload is a structured failure with a machine-checkable kind.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func rosterPayload(room *domain.Room) RosterPayload {
	players := room.ParticipantsInOrder()
	out := RosterPayload{
		PlayerCount: len(players),
		Players:     make([]domain.Standing, 0, len(players)),
	}
	for _, p := range players {
		out.Players = append(out.Players, domain.Standing{
			ConnectionID: p.ConnectionID,
			DisplayName:  p.DisplayName,
			Score:        p.Score,
		})
	}
	return out
}

func questionPayload(room *domain.Room, q domain.Question) QuestionPayload {
	return QuestionPayload{
		ID:             q.ID,
		Kind:           q.Kind,
		Text:           q.Text,
		Options:        q.Options,
		TimeLimit:      q.TimeLimit(),
		QuestionNumber: room.CurrentQuestionIndex + 1,
		TotalQuestions: len(room.Quiz.Questions),
	}
}
