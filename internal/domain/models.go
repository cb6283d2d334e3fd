package domain

import "time"

// Question count bounds for a game.
const (
	MinQuestionCount     = 5
	MaxQuestionCount     = 25
	DefaultQuestionCount = 10
	ChoicesPerQuestion   = 4
)

// Mode is how a game is played.
type Mode string

const (
	ModeNone        Mode = ""
	ModeSolo        Mode = "solo"
	ModeMultiplayer Mode = "multiplayer"
)

// Valid reports whether m is a selectable mode.
func (m Mode) Valid() bool {
	return m == ModeSolo || m == ModeMultiplayer
}

// Difficulty filters questions. The empty value means any difficulty.
type Difficulty string

const (
	DifficultyAny    Difficulty = ""
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Role distinguishes the room creator from everyone else.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Phase is the state of a game session.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseModeSelected Phase = "mode_selected"
	PhaseConfiguring  Phase = "configuring"
	PhaseInProgress   Phase = "in_progress"
	PhaseSummary      Phase = "summary"
)

// QuizSettings configures the question pool of a game. CategoryID 0 means any category.
type QuizSettings struct {
	QuestionCount int        `json:"questionCount" validate:"gte=5,lte=25"`
	CategoryID    int        `json:"categoryId,omitempty" validate:"gte=0"`
	Difficulty    Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	RoomID        string     `json:"roomId,omitempty"`
}

// DefaultSettings returns the settings a new game starts with.
func DefaultSettings() QuizSettings {
	return QuizSettings{QuestionCount: DefaultQuestionCount}
}

// SettingsPatch is a field-level settings change; nil fields are left untouched.
type SettingsPatch struct {
	QuestionCount *int        `json:"questionCount,omitempty"`
	CategoryID    *int        `json:"categoryId,omitempty"`
	Difficulty    *Difficulty `json:"difficulty,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.QuestionCount == nil && p.CategoryID == nil && p.Difficulty == nil
}

// Apply returns s with the patched fields replaced.
func (p SettingsPatch) Apply(s QuizSettings) QuizSettings {
	if p.QuestionCount != nil {
		s.QuestionCount = *p.QuestionCount
	}
	if p.CategoryID != nil {
		s.CategoryID = *p.CategoryID
	}
	if p.Difficulty != nil {
		s.Difficulty = *p.Difficulty
	}
	return s
}

// Category is a trivia category offered by the provider.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Question is a multiple-choice question. Choices are in display order and
// contain CorrectAnswer exactly once.
type Question struct {
	Text          string     `json:"text"`
	Category      string     `json:"category"`
	Difficulty    Difficulty `json:"difficulty"`
	Choices       []string   `json:"choices"`
	CorrectAnswer string     `json:"correctAnswer"`
}

// IsCorrect reports whether the choice at index i is the correct answer.
func (q Question) IsCorrect(i int) bool {
	return i >= 0 && i < len(q.Choices) && q.Choices[i] == q.CorrectAnswer
}

// QuestionPool is the ordered set of questions for one game.
type QuestionPool []Question

// RawQuestion is a question record as returned by the trivia provider.
type RawQuestion struct {
	Category         string   `json:"category"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// Player is a room member.
type Player struct {
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

// Room is the shared record of a multiplayer game. PoolSettings are the
// settings the host built Pool from.
type Room struct {
	ID           string            `json:"id"`
	Settings     QuizSettings      `json:"settings"`
	Players      map[string]Player `json:"players"`
	Pool         QuestionPool      `json:"pool,omitempty"`
	PoolSettings *QuizSettings     `json:"poolSettings,omitempty"`
}

// ReadyPool returns the published pool if it was built from the current
// room settings.
func (r Room) ReadyPool() (QuestionPool, bool) {
	if len(r.Pool) == 0 || r.PoolSettings == nil {
		return nil, false
	}
	built := *r.PoolSettings
	built.RoomID = r.Settings.RoomID
	if built != r.Settings {
		return nil, false
	}
	return r.Pool, true
}

// Role returns the role of playerID, or "" when not a member.
func (r Room) Role(playerID string) Role {
	if p, ok := r.Players[playerID]; ok {
		return p.Role
	}
	return ""
}

// QuestionView is the question a player currently sees. CorrectAnswer is only
// filled while the answer is revealed.
type QuestionView struct {
	Number        int        `json:"number"`
	Text          string     `json:"text"`
	Category      string     `json:"category"`
	Difficulty    Difficulty `json:"difficulty"`
	Choices       []string   `json:"choices"`
	CorrectAnswer string     `json:"correctAnswer,omitempty"`
}

// AnswerOutcome is the result of the last submitted answer.
type AnswerOutcome struct {
	Choice  int  `json:"choice"`
	Correct bool `json:"correct"`
}

// Summary is shown once every question was answered.
type Summary struct {
	Score  int  `json:"score"`
	Total  int  `json:"total"`
	Expert bool `json:"expert"`
}

// NewSummary builds a summary. A score of at least 80% earns the expert badge.
func NewSummary(score, total int) Summary {
	return Summary{
		Score:  score,
		Total:  total,
		Expert: total > 0 && score*5 >= total*4,
	}
}

// SessionState is a snapshot of a game session.
type SessionState struct {
	PlayerID     string         `json:"playerId"`
	Phase        Phase          `json:"phase"`
	Mode         Mode           `json:"mode,omitempty"`
	Role         Role           `json:"role,omitempty"`
	Settings     QuizSettings   `json:"settings"`
	Loading      bool           `json:"loading"`
	Total        int            `json:"total"`
	CurrentIndex int            `json:"currentIndex"` // -1 before the first question
	Current      *QuestionView  `json:"current,omitempty"`
	Score        int            `json:"score"`
	RevealActive bool           `json:"revealActive"`
	LastAnswer   *AnswerOutcome `json:"lastAnswer,omitempty"`
	Summary      *Summary       `json:"summary,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// GameResult is a finished game kept in the player's history.
type GameResult struct {
	ID         string       `json:"id"`
	PlayerID   string       `json:"playerId"`
	Mode       Mode         `json:"mode"`
	RoomID     string       `json:"roomId,omitempty"`
	Score      int          `json:"score"`
	Total      int          `json:"total"`
	Settings   QuizSettings `json:"settings"`
	FinishedAt time.Time    `json:"finishedAt"`
}
