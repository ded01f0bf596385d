package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Room is one live session. In memory, participants live in a map keyed by
// connection ID plus a join-order slice; on the wire they collapse into a
// single ordered array so the store round trip keeps tie-breaks stable.
type Room struct {
	ID                   string
	HostConnectionID     string
	HostIdentity         string
	Quiz                 Quiz
	Participants         map[string]*Participant
	JoinOrder            []string
	CurrentQuestionIndex int
	Phase                Phase
	SecondsRemaining     int
	Votes                map[string]string
}

// NewRoom initializes a lobby-phase room around an immutable quiz.
func NewRoom(id, hostConnectionID, hostIdentity string, quiz Quiz) *Room {
	return &Room{
		ID:                   id,
		HostConnectionID:     hostConnectionID,
		HostIdentity:         hostIdentity,
		Quiz:                 quiz,
		Participants:         make(map[string]*Participant),
		CurrentQuestionIndex: -1,
		Phase:                PhaseLobby,
		Votes:                make(map[string]string),
	}
}

// AddParticipant registers a new participant with a zero score. Adding an
// already-known connection is a no-op.
func (r *Room) AddParticipant(connectionID, displayName string) (*Participant, bool) {
	if p, ok := r.Participants[connectionID]; ok {
		return p, false
	}
	p := &Participant{ConnectionID: connectionID, DisplayName: displayName}
	r.Participants[connectionID] = p
	r.JoinOrder = append(r.JoinOrder, connectionID)
	return p, true
}

// Participant looks up an audience member by connection ID.
func (r *Room) Participant(connectionID string) (*Participant, bool) {
	p, ok := r.Participants[connectionID]
	return p, ok
}

// ParticipantsInOrder returns participants in the order they joined.
func (r *Room) ParticipantsInOrder() []*Participant {
	out := make([]*Participant, 0, len(r.JoinOrder))
	for _, id := range r.JoinOrder {
		if p, ok := r.Participants[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// CurrentQuestion returns the question at the current index, if one is selected.
func (r *Room) CurrentQuestion() (Question, bool) {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Quiz.Questions) {
		return Question{}, false
	}
	return r.Quiz.Questions[r.CurrentQuestionIndex], true
}

// Tally recomputes the per-option vote count for the current question from
// scratch. Every option appears, zero-filled; votes for unknown option IDs are
// not counted.
func (r *Room) Tally() map[string]int {
	counts := make(map[string]int)
	q, ok := r.CurrentQuestion()
	if !ok {
		return counts
	}
	for _, opt := range q.Options {
		counts[opt.ID] = 0
	}
	for _, optionID := range r.Votes {
		if _, known := counts[optionID]; known {
			counts[optionID]++
		}
	}
	return counts
}

// Standings returns participants sorted by score descending. Ties keep join
// order.
func (r *Room) Standings() []Standing {
	players := r.ParticipantsInOrder()
	entries := make([]Standing, 0, len(players))
	for _, p := range players {
		entries = append(entries, Standing{
			ConnectionID: p.ConnectionID,
			DisplayName:  p.DisplayName,
			Score:        p.Score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// LeaderboardRecord snapshots final scores and answer history for the durable
// store.
func (r *Room) LeaderboardRecord(now time.Time) LeaderboardRecord {
	players := r.ParticipantsInOrder()
	results := make([]PlayerResult, 0, len(players))
	for _, p := range players {
		results = append(results, PlayerResult{
			Identity:    p.ConnectionID,
			DisplayName: p.DisplayName,
			FinalScore:  p.Score,
			Answers:     p.Answers,
		})
	}
	return LeaderboardRecord{
		RoomID:     r.ID,
		QuizID:     r.Quiz.ID,
		FinishedAt: now,
		Players:    results,
	}
}

// roomWire is the serialized form of a Room. Participants travel as a
// join-ordered array.
type roomWire struct {
	ID                   string            `json:"id"`
	HostConnectionID     string            `json:"hostConnectionId"`
	HostIdentity         string            `json:"hostIdentity"`
	Quiz                 Quiz              `json:"quiz"`
	Participants         []Participant     `json:"participants"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	Phase                Phase             `json:"phase"`
	SecondsRemaining     int               `json:"secondsRemaining"`
	Votes                map[string]string `json:"votes"`
}

func (r *Room) MarshalJSON() ([]byte, error) {
	wire := roomWire{
		ID:                   r.ID,
		HostConnectionID:     r.HostConnectionID,
		HostIdentity:         r.HostIdentity,
		Quiz:                 r.Quiz,
		Participants:         make([]Participant, 0, len(r.JoinOrder)),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		Phase:                r.Phase,
		SecondsRemaining:     r.SecondsRemaining,
		Votes:                r.Votes,
	}
	for _, p := range r.ParticipantsInOrder() {
		wire.Participants = append(wire.Participants, *p)
	}
	return json.Marshal(wire)
}

func (r *Room) UnmarshalJSON(data []byte) error {
	var wire roomWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.ID = wire.ID
	r.HostConnectionID = wire.HostConnectionID
	r.HostIdentity = wire.HostIdentity
	r.Quiz = wire.Quiz
	r.CurrentQuestionIndex = wire.CurrentQuestionIndex
	r.Phase = wire.Phase
	r.SecondsRemaining = wire.SecondsRemaining
	r.Votes = wire.Votes
	if r.Votes == nil {
		r.Votes = make(map[string]string)
	}
	r.Participants = make(map[string]*Participant, len(wire.Participants))
	r.JoinOrder = make([]string, 0, len(wire.Participants))
	for i := range wire.Participants {
		p := wire.Participants[i]
		r.Participants[p.ConnectionID] = &p
		r.JoinOrder = append(r.JoinOrder, p.ConnectionID)
	}
	return nil
}
