package session

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// CloseActor selects the clamping policy applied when a session is closed.
type CloseActor int

const (
	// CloseManual records the moment the visitor actually left, even past ends_at.
	CloseManual CloseActor = iota + 1
	// CloseAutomatic never records a time later than the planned ends_at.
	CloseAutomatic
)

func (a CloseActor) String() string {
	switch a {
	case CloseManual:
		return "manual"
	case CloseAutomatic:
		return "automatic"
	default:
		return "unknown"
	}
}

func (a CloseActor) valid() bool {
	return a == CloseManual || a == CloseAutomatic
}

type Session struct {
	ID           string     `json:"id" gorm:"primaryKey;type:uuid"`
	GroupID      *string    `json:"group_id,omitempty" gorm:"type:uuid;index"`
	UserID       *string    `json:"user_id,omitempty" gorm:"type:uuid;index"`
	GameID       string     `json:"game_id" gorm:"type:uuid;not null;index"`
	Players      int        `json:"players" gorm:"not null"`
	Status       Status     `json:"status" gorm:"type:varchar(16);not null;index"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null"`
	EndsAt       time.Time  `json:"ends_at" gorm:"not null;index"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ExitToken    *string    `json:"-" gorm:"type:varchar(64);index"`
	VisitorName  string     `json:"visitor_name" gorm:"not null;default:''"`
	VisitorPhone string     `json:"visitor_phone" gorm:"not null;default:''"`
	VisitorEmail string     `json:"visitor_email" gorm:"not null;default:''"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// Ended treats a row as closed when either marker is set.
func (s *Session) Ended() bool {
	return s.Status == StatusEnded || s.EndedAt != nil
}

// GroupKey is the chain identifier, falling back to the row id for rows that never got a group.
func (s *Session) GroupKey() string {
	if s.GroupID != nil && *s.GroupID != "" {
		return *s.GroupID
	}
	return s.ID
}

func (s *Session) endedAtOrPlanned() time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return s.EndsAt
}

type Visitor struct {
	Name  string `json:"name" binding:"required,max=120"`
	Phone string `json:"phone" binding:"omitempty,max=32"`
	Email string `json:"email" binding:"omitempty,email,max=254"`
}

type CreateInput struct {
	GameID  string
	Players int
	Visitor Visitor
	UserID  *string
	GroupID string
}

type EndResult struct {
	SessionID    string    `json:"session_id"`
	EndedAt      time.Time `json:"ended_at"`
	AlreadyEnded bool      `json:"already_ended"`
}

type ExitResult struct {
	SessionID    string    `json:"session_id"`
	EndedAt      time.Time `json:"ended_at"`
	AlreadyEnded bool      `json:"already_ended"`
}

type SweepResult struct {
	Candidates int `json:"candidates"`
	RolledOver int `json:"rolled_over"`
	Ended      int `json:"ended"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type Slot struct {
	SessionID string     `json:"session_id"`
	GameID    string     `json:"game_id"`
	Players   int        `json:"players"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndsAt    time.Time  `json:"ends_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// GroupedRow is one visit: every slot of a chain folded into a single view.
type GroupedRow struct {
	GroupID          string     `json:"group_id"`
	CurrentSessionID string     `json:"current_session_id"`
	GameID           string     `json:"game_id"`
	Players          int        `json:"players"`
	Status           Status     `json:"status"`
	UserID           *string    `json:"user_id,omitempty"`
	VisitorName      string     `json:"visitor_name"`
	VisitorPhone     string     `json:"visitor_phone"`
	VisitorEmail     string     `json:"visitor_email"`
	StartedAt        time.Time  `json:"started_at"`
	EndsAt           time.Time  `json:"ends_at"`
	ExitTime         *time.Time `json:"exit_time,omitempty"`
	HasExitCode      bool       `json:"has_exit_code"`
	Slots            []Slot     `json:"slots"`
	CreatedAt        time.Time  `json:"created_at"`
}

type View string

const (
	ViewActive View = "active"
	ViewEnded  View = "ended"
	ViewAll    View = "all"
)

func ParseView(s string) (View, bool) {
	switch View(s) {
	case "", ViewActive:
		return ViewActive, true
	case ViewEnded, ViewAll:
		return View(s), true
	default:
		return "", false
	}
}

// ListFilter limits whole visits, never individual rows, so a chain is always complete.
type ListFilter struct {
	ActiveGroupsOnly bool
	GroupLimit       int
}

type CreateSessionRequest struct {
	GameID  string  `json:"game_id" binding:"required,uuid"`
	Players int     `json:"players" binding:"required,min=1"`
	Visitor Visitor `json:"visitor" binding:"required"`
	GroupID string  `json:"group_id" binding:"omitempty,uuid"`
}

type ExitRequest struct {
	Token string `json:"token" form:"token"`
}

type ExitCredentialResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
