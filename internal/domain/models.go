package domain

import "time"

// Phase is the state-machine state of a live room.
type Phase string

const (
	PhaseLobby          Phase = "LOBBY"
	PhaseQuestionActive Phase = "QUESTION_ACTIVE"
	PhaseQuestionEnded  Phase = "QUESTION_ENDED"
	PhaseQuizEnded      Phase = "QUIZ_ENDED"
	PhaseTerminated     Phase = "TERMINATED"
)

// QuestionKind distinguishes scored quiz questions from poll questions.
type QuestionKind string

const (
	KindScored   QuestionKind = "SCORED"
	KindUnscored QuestionKind = "UNSCORED"
)

const (
	// PointsPerCorrectAnswer is awarded for each correct vote on a scored question.
	PointsPerCorrectAnswer = 10
	// DefaultTimeLimitSeconds applies when a question carries no time limit.
	DefaultTimeLimitSeconds = 15
)

// Option is one possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is an immutable part of a quiz definition. CorrectOptionID is only
// meaningful for scored questions; polls have no correct answer.
type Question struct {
	ID               string       `json:"id"`
	Kind             QuestionKind `json:"kind"`
	Text             string       `json:"text"`
	Options          []Option     `json:"options"`
	CorrectOptionID  string       `json:"correctOptionId,omitempty"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
}

// TimeLimit returns the countdown length for the question in seconds.
func (q Question) TimeLimit() int {
	if q.TimeLimitSeconds <= 0 {
		return DefaultTimeLimitSeconds
	}
	return q.TimeLimitSeconds
}

// Quiz is an ordered collection of questions, fetched once at room creation.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// AnswerRecord captures one participant's vote on a finished question.
type AnswerRecord struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	Correct    bool   `json:"correct"`
}

// Participant is one audience member, identified by their connection.
type Participant struct {
	ConnectionID string         `json:"connectionId"`
	DisplayName  string         `json:"displayName"`
	Score        int            `json:"score"`
	Answers      []AnswerRecord `json:"answers"`
}

// Standing is a leaderboard row broadcast to clients.
type Standing struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Score        int    `json:"score"`
}

// PlayerResult is one participant's final outcome inside a leaderboard record.
type PlayerResult struct {
	Identity    string         `json:"identity"`
	DisplayName string         `json:"displayName"`
	FinalScore  int            `json:"finalScore"`
	Answers     []AnswerRecord `json:"answers"`
}

// LeaderboardRecord is the durable, write-once summary of a finished or
// terminated room.
type LeaderboardRecord struct {
	RoomID     string         `json:"roomId"`
	QuizID     string         `json:"quizId"`
	FinishedAt time.Time      `json:"finishedAt"`
	Players    []PlayerResult `json:"players"`
}
