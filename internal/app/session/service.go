package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"gamezone/internal/app/game"
	"gamezone/internal/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventSessionStarted    = "session_started"
	EventSessionEnded      = "session_ended"
	EventSessionRolledOver = "session_rolled_over"
	EventExitCredential    = "exit_credential_issued"
	EventSessionDeleted    = "session_deleted"

	groupsCachePrefix = "sessions:groups:"
	groupsVersionKey  = "sessions:groups:version"
	defaultSweepBatch = 200
	defaultGroupLimit = 500
)

// GroupCache is the slice of the redis provider backing the visit listing cache.
type GroupCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// GameCatalog is the slice of the game service the lifecycle needs.
type GameCatalog interface {
	GetGame(ctx context.Context, id string) (*game.Game, error)
}

type Service interface {
	CreateSession(ctx context.Context, input CreateInput) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	GenerateExitCredential(ctx context.Context, id string) (string, error)
	ExitURL(token string) string
	EndSession(ctx context.Context, id string, closedAt time.Time, actor CloseActor) (*EndResult, error)
	ResolveExitToken(ctx context.Context, token string) (*ExitResult, error)
	SweepOverdueSessions(ctx context.Context, grace time.Duration) (*SweepResult, error)
	ListGroups(ctx context.Context, view View) ([]GroupedRow, error)
	DeleteSession(ctx context.Context, id string) error
	Now() time.Time
}

type Options struct {
	Clock       clockwork.Clock
	ExitBaseURL string
	SweepBatch  int
	CacheTTL    time.Duration
	// GroupLimit caps how many visits a listing returns.
	GroupLimit  int
}

type LifecycleEvent struct {
	SessionID   string     `json:"session_id"`
	GroupID     string     `json:"group_id"`
	GameID      string     `json:"game_id,omitempty"`
	Status      Status     `json:"status,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	SuccessorID string     `json:"successor_id,omitempty"`
	Actor       string     `json:"actor,omitempty"`
}

type service struct {
	repo     Repository
	games    GameCatalog
	cache    GroupCache
	eventBus *utils.EventBus
	logger   *zap.SugaredLogger
	clock    clockwork.Clock
	exitBase string
	batch    int
	cacheTTL time.Duration
	groups   int
}

func NewService(
	repo Repository,
	games GameCatalog,
	cache GroupCache,
	eventBus *utils.EventBus,
	logger *zap.Logger,
	opts Options,
) Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = defaultSweepBatch
	}
	if opts.GroupLimit <= 0 {
		opts.GroupLimit = defaultGroupLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 15 * time.Second
	}
	return &service{
		repo:     repo,
		games:    games,
		cache:    cache,
		eventBus: eventBus,
		logger:   logger.Sugar(),
		clock:    opts.Clock,
		exitBase: opts.ExitBaseURL,
		batch:    opts.SweepBatch,
		cacheTTL: opts.CacheTTL,
		groups:   opts.GroupLimit,
	}
}

func (s *service) Now() time.Time {
	return s.clock.Now().UTC()
}

func (s *service) CreateSession(ctx context.Context, input CreateInput) (*Session, error) {
	input.Visitor.Name = strings.TrimSpace(input.Visitor.Name)
	input.Visitor.Phone = strings.TrimSpace(input.Visitor.Phone)
	input.Visitor.Email = strings.TrimSpace(input.Visitor.Email)

	if input.Players < 1 {
		return nil, validationErr("players must be at least 1")
	}

	g, err := s.games.GetGame(ctx, input.GameID)
	if errors.Is(err, game.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, storageErr("load game", err)
	}
	if !g.Active {
		return nil, validationErr("game %q is not available", g.Name)
	}
	if g.DurationMinutes <= 0 {
		return nil, validationErr("game %q has no duration", g.Name)
	}
	if g.MaxPlayers > 0 && input.Players > g.MaxPlayers {
		return nil, validationErr("game %q allows at most %d players", g.Name, g.MaxPlayers)
	}

	now := s.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		GameID:       g.ID,
		Players:      input.Players,
		Status:       StatusActive,
		StartedAt:    now,
		VisitorName:  input.Visitor.Name,
		VisitorPhone: input.Visitor.Phone,
		VisitorEmail: input.Visitor.Email,
	}

	joined := input.GroupID != ""
	if !joined {
		groupID := uuid.NewString()
		sess.GroupID = &groupID
	} else if err := s.joinGroup(ctx, sess, input.GroupID); err != nil {
		return nil, err
	}
	sess.EndsAt = sess.StartedAt.Add(g.Duration())

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	if joined {
		s.syncGroupToken(ctx, sess)
	}

	s.logger.Infow("Session started",
		"session_id", sess.ID,
		"group_id", sess.GroupKey(),
		"game_id", sess.GameID,
		"players", sess.Players,
		"ends_at", sess.EndsAt,
	)
	s.publish(ctx, EventSessionStarted, eventFor(sess))
	return sess, nil
}

// joinGroup appends the new slot after the last open slot of an existing visit.
func (s *service) joinGroup(ctx context.Context, sess *Session, groupID string) error {
	rows, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}

	var open []*Session
	for _, r := range rows {
		if !r.Ended() {
			open = append(open, r)
		}
	}
	if len(open) == 0 {
		return validationErr("visit %s is already closed", groupID)
	}

	for _, r := range open {
		if r.EndsAt.After(sess.StartedAt) {
			sess.StartedAt = r.EndsAt
		}
	}
	for _, r := range rows {
		if r.ExitToken != nil && *r.ExitToken != "" {
			token := *r.ExitToken
			sess.ExitToken = &token
			break
		}
	}

	latest := rows[len(rows)-1]
	if sess.VisitorName == "" {
		sess.VisitorName = latest.VisitorName
	}
	if sess.VisitorPhone == "" {
		sess.VisitorPhone = latest.VisitorPhone
	}
	if sess.VisitorEmail == "" {
		sess.VisitorEmail = latest.VisitorEmail
	}
	if sess.UserID == nil {
		sess.UserID = latest.UserID
	}

	gid := rows[0].GroupKey()
	sess.GroupID = &gid
	return nil
}

// syncGroupToken gives a freshly inserted slot the visit's exit token when a credential
// was issued between reading the group and inserting the slot.
func (s *service) syncGroupToken(ctx context.Context, sess *Session) {
	if sess.ExitToken != nil && *sess.ExitToken != "" {
		return
	}
	rows, err := s.repo.ListByGroup(ctx, sess.GroupKey())
	if err != nil {
		s.logger.Warnw("Failed to check visit exit token", "session_id", sess.ID, "error", err)
		return
	}
	token := ""
	for _, r := range rows {
		if r.ExitToken != nil && *r.ExitToken != "" {
			token = *r.ExitToken
			break
		}
	}
	if token == "" {
		return
	}

	groupID := sess.GroupKey()
	if _, err := s.repo.AssignExitToken(ctx, sess.ID, &groupID, token); err != nil {
		s.logger.Warnw("Failed to copy visit exit token", "session_id", sess.ID, "error", err)
		return
	}
	sess.ExitToken = &token
}

func (s *service) GetSession(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) GenerateExitCredential(ctx context.Context, id string) (string, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return "", err
	}
	if sess.ExitToken != nil && *sess.ExitToken != "" && sess.GroupID == nil {
		return *sess.ExitToken, nil
	}

	token := ""
	if sess.GroupID != nil {
		rows, err := s.repo.ListByGroup(ctx, *sess.GroupID)
		if err != nil {
			return "", err
		}
		complete := true
		for _, r := range rows {
			if r.ExitToken != nil && *r.ExitToken != "" {
				if token == "" {
					token = *r.ExitToken
				}
			} else {
				complete = false
			}
		}
		if complete && sess.ExitToken != nil && *sess.ExitToken != "" {
			return *sess.ExitToken, nil
		}
	}

	issued := token == ""
	if issued {
		token, err = generateExitToken()
		if err != nil {
			return "", fmt.Errorf("generate exit token: %w", err)
		}
	}

	if _, err := s.repo.AssignExitToken(ctx, sess.ID, sess.GroupID, token); err != nil {
		return "", err
	}

	current, err := s.repo.GetByID(ctx, sess.ID)
	if err != nil {
		return "", err
	}
	if current.ExitToken == nil || *current.ExitToken == "" {
		return "", storageErr("assign exit token", errors.New("token not persisted"))
	}

	if sess.GroupID != nil {
		// slots inserted while the first update ran were not visible to it
		if _, err := s.repo.AssignExitToken(ctx, sess.ID, sess.GroupID, *current.ExitToken); err != nil {
			return "", err
		}
	}

	if issued && *current.ExitToken == token {
		s.logger.Infow("Exit credential issued", "session_id", sess.ID, "group_id", sess.GroupKey())
		s.publish(ctx, EventExitCredential, LifecycleEvent{SessionID: sess.ID, GroupID: sess.GroupKey()})
	}
	return *current.ExitToken, nil
}

func (s *service) ExitURL(token string) string {
	if s.exitBase == "" {
		return token
	}
	u, err := url.Parse(s.exitBase)
	if err != nil {
		return s.exitBase + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *service) EndSession(ctx context.Context, id string, closedAt time.Time, actor CloseActor) (*EndResult, error) {
	if !actor.valid() {
		return nil, validationErr("unknown close actor %d", actor)
	}
	if closedAt.IsZero() {
		closedAt = s.Now()
	}

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.closeSession(ctx, s.repo, sess, closedAt, actor)
	if err != nil {
		return nil, err
	}
	if !res.AlreadyEnded {
		s.afterClose(ctx, sess, actor)
	}
	return res, nil
}

// closeSession is the only place that transitions a row to ended.
func (s *service) closeSession(ctx context.Context, repo Repository, sess *Session, closedAt time.Time, actor CloseActor) (*EndResult, error) {
	if sess.Ended() {
		return &EndResult{SessionID: sess.ID, EndedAt: sess.endedAtOrPlanned(), AlreadyEnded: true}, nil
	}

	endedAt := effectiveCloseTime(sess, closedAt, actor)
	won, err := repo.MarkEnded(ctx, sess.ID, endedAt)
	if err != nil {
		return nil, err
	}

	if !won {
		current, err := repo.GetByID(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if !current.Ended() {
			return nil, storageErr("close", fmt.Errorf("conditional update on %s matched no rows", sess.ID))
		}
		return &EndResult{SessionID: sess.ID, EndedAt: current.endedAtOrPlanned(), AlreadyEnded: true}, nil
	}

	sess.Status = StatusEnded
	sess.EndedAt = &endedAt
	return &EndResult{SessionID: sess.ID, EndedAt: endedAt}, nil
}

// effectiveCloseTime applies the actor's clamp, then keeps the window non-negative.
func effectiveCloseTime(sess *Session, closedAt time.Time, actor CloseActor) time.Time {
	t := closedAt
	if actor == CloseAutomatic && t.After(sess.EndsAt) {
		t = sess.EndsAt
	}
	if t.Before(sess.StartedAt) {
		t = sess.StartedAt
	}
	return t.UTC()
}

func (s *service) afterClose(ctx context.Context, sess *Session, actor CloseActor) {
	s.logger.Infow("Session ended",
		"session_id", sess.ID,
		"group_id", sess.GroupKey(),
		"ended_at", sess.EndedAt,
		"actor", actor.String(),
	)
	ev := eventFor(sess)
	ev.Actor = actor.String()
	s.publish(ctx, EventSessionEnded, ev)
}

func (s *service) ResolveExitToken(ctx context.Context, token string) (*ExitResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	rows, err := s.repo.ListByExitToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrInvalidToken
	}
	sortChain(rows)

	now := s.Now()
	var target *Session
	for _, r := range rows {
		if !r.Ended() && !r.StartedAt.After(now) {
			target = r
		}
	}
	if target == nil {
		for _, r := range rows {
			if !r.Ended() {
				target = r
				break
			}
		}
	}

	if target == nil {
		last := rows[0]
		for _, r := range rows[1:] {
			if r.endedAtOrPlanned().After(last.endedAtOrPlanned()) {
				last = r
			}
		}
		return &ExitResult{SessionID: last.ID, EndedAt: last.endedAtOrPlanned(), AlreadyEnded: true}, nil
	}

	res, err := s.closeSession(ctx, s.repo, target, now, CloseManual)
	if err != nil {
		return nil, err
	}
	if !res.AlreadyEnded {
		s.afterClose(ctx, target, CloseManual)
	}

	for _, r := range rows {
		if r == target || r.Ended() {
			continue
		}
		if r.StartedAt.After(now) {
			// A slot that never started is cancelled rather than recorded as played.
			if _, err := s.repo.Delete(ctx, r.ID); err != nil {
				s.logger.Warnw("Failed to cancel unstarted slot on exit", "session_id", r.ID, "error", err)
				continue
			}
			s.publish(ctx, EventSessionDeleted, LifecycleEvent{SessionID: r.ID, GroupID: r.GroupKey()})
			continue
		}
		// Earlier slots are past their window and keep their planned end.
		closed, err := s.closeSession(ctx, s.repo, r, now, CloseAutomatic)
		if err != nil {
			s.logger.Warnw("Failed to close chained session on exit", "session_id", r.ID, "error", err)
			continue
		}
		if !closed.AlreadyEnded {
			s.afterClose(ctx, r, CloseAutomatic)
		}
	}

	return &ExitResult{SessionID: target.ID, EndedAt: res.EndedAt, AlreadyEnded: res.AlreadyEnded}, nil
}

type sweepOutcome int

const (
	outcomeSkipped sweepOutcome = iota
	outcomeEnded
	outcomeRolledOver
)

func (s *service) SweepOverdueSessions(ctx context.Context, grace time.Duration) (*SweepResult, error) {
	if grace < 0 {
		grace = 0
	}
	now := s.Now()
	cutoff := now.Add(-grace)

	rows, err := s.repo.ListOverdue(ctx, cutoff, s.batch)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Candidates: len(rows)}
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		outcome, err := s.rollOver(ctx, row)
		if err != nil {
			result.Failed++
			s.logger.Errorw("Failed to sweep session", "session_id", row.ID, "error", err)
			continue
		}
		switch outcome {
		case outcomeRolledOver:
			result.RolledOver++
		case outcomeEnded:
			result.Ended++
		default:
			result.Skipped++
		}
	}

	s.logger.Infow("Sweep finished",
		"cutoff", cutoff,
		"candidates", result.Candidates,
		"rolled_over", result.RolledOver,
		"ended", result.Ended,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// rollOver closes one overdue row at its planned end and, when the visit has no
// successor yet, books the next slot starting exactly at that end.
func (s *service) rollOver(ctx context.Context, row *Session) (sweepOutcome, error) {
	if row.GroupID == nil || *row.GroupID == "" {
		gid := uuid.NewString()
		won, err := s.repo.AssignGroup(ctx, row.ID, gid)
		if err != nil {
			return outcomeSkipped, err
		}
		if !won {
			current, err := s.repo.GetByID(ctx, row.ID)
			if err != nil {
				return outcomeSkipped, err
			}
			row = current
		} else {
			row.GroupID = &gid
		}
	}

	var (
		outcome   = outcomeSkipped
		successor *Session
	)
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		exists, err := tx.HasSuccessor(ctx, row.GroupKey(), row.EndsAt, row.ID)
		if err != nil {
			return err
		}

		res, err := s.closeSession(ctx, tx, row, row.EndsAt, CloseAutomatic)
		if err != nil {
			return err
		}
		if res.AlreadyEnded {
			return nil
		}
		outcome = outcomeEnded
		if exists {
			return nil
		}

		// the row read by the overdue scan may predate a credential issued since
		closed, err := tx.GetByID(ctx, row.ID)
		if err != nil {
			return err
		}

		g, err := s.games.GetGame(ctx, row.GameID)
		if errors.Is(err, game.ErrNotFound) {
			s.logger.Warnw("Game removed, closing without rollover", "session_id", row.ID, "game_id", row.GameID)
			return nil
		}
		if err != nil {
			return storageErr("load game", err)
		}
		if g.DurationMinutes <= 0 {
			return nil
		}

		groupID := row.GroupKey()
		successor = &Session{
			ID:           uuid.NewString(),
			GroupID:      &groupID,
			UserID:       row.UserID,
			GameID:       row.GameID,
			Players:      row.Players,
			Status:       StatusActive,
			StartedAt:    row.EndsAt,
			EndsAt:       row.EndsAt.Add(g.Duration()),
			ExitToken:    closed.ExitToken,
			VisitorName:  row.VisitorName,
			VisitorPhone: row.VisitorPhone,
			VisitorEmail: row.VisitorEmail,
		}
		if err := tx.Create(ctx, successor); err != nil {
			return err
		}
		outcome = outcomeRolledOver
		return nil
	})
	if err != nil {
		row.Status, row.EndedAt = StatusActive, nil
		return outcomeSkipped, storageErr("rollover", err)
	}

	switch outcome {
	case outcomeRolledOver:
		s.syncGroupToken(ctx, successor)
		s.afterClose(ctx, row, CloseAutomatic)
		ev := eventFor(successor)
		ev.SuccessorID = successor.ID
		ev.SessionID = row.ID
		s.publish(ctx, EventSessionRolledOver, ev)
	case outcomeEnded:
		s.afterClose(ctx, row, CloseAutomatic)
	}
	return outcome, nil
}

// ListGroups caches per view under a version that every mutation bumps, so a projection
// built from rows read before a mutation is never served after it.
func (s *service) ListGroups(ctx context.Context, view View) ([]GroupedRow, error) {
	cacheKey := ""
	if s.cache != nil {
		version, err := s.cache.Get(ctx, groupsVersionKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			version = "0"
			fallthrough
		case err == nil:
			cacheKey = groupsCachePrefix + version + ":" + string(view)
			if raw, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
				var cached []GroupedRow
				if err := json.Unmarshal([]byte(raw), &cached); err == nil {
					return cached, nil
				}
			}
		default:
			s.logger.Warnw("Session group cache unavailable", "error", err)
		}
	}

	rows, err := s.repo.List(ctx, ListFilter{
		ActiveGroupsOnly: view == ViewActive,
		GroupLimit:       s.groups,
	})
	if err != nil {
		return nil, err
	}

	groups := ProjectGroups(rows)
	switch view {
	case ViewActive:
		groups = filterGroups(groups, StatusActive)
	case ViewEnded:
		groups = filterGroups(groups, StatusEnded)
	}

	if cacheKey != "" {
		if data, err := json.Marshal(groups); err == nil {
			if err := s.cache.SetEX(ctx, cacheKey, data, s.cacheTTL).Err(); err != nil {
				s.logger.Warnw("Failed to cache session groups", "key", cacheKey, "error", err)
			}
		}
	}
	return groups, nil
}

func filterGroups(groups []GroupedRow, status Status) []GroupedRow {
	out := make([]GroupedRow, 0, len(groups))
	for _, g := range groups {
		if g.Status == status {
			out = append(out, g)
		}
	}
	return out
}

func (s *service) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, sess.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	s.logger.Infow("Session deleted", "session_id", sess.ID, "group_id", sess.GroupKey())
	s.publish(ctx, EventSessionDeleted, LifecycleEvent{SessionID: sess.ID, GroupID: sess.GroupKey()})
	return nil
}

func (s *service) publish(ctx context.Context, event string, payload LifecycleEvent) {
	s.invalidateGroups(ctx)
	if s.eventBus != nil {
		s.eventBus.Publish(event, payload)
	}
}

func (s *service) invalidateGroups(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, groupsVersionKey).Err(); err != nil {
		s.logger.Warnw("Failed to invalidate session groups", "error", err)
	}
}

func eventFor(sess *Session) LifecycleEvent {
	started, ends := sess.StartedAt, sess.EndsAt
	return LifecycleEvent{
		SessionID: sess.ID,
		GroupID:   sess.GroupKey(),
		GameID:    sess.GameID,
		Status:    sess.Status,
		StartedAt: &started,
		EndsAt:    &ends,
		EndedAt:   sess.EndedAt,
	}
}

func sortChain(rows []*Session) {
	sort.SliceStable(rows, func(i, j int) bool {
		return chainLess(rows[i], rows[j])
	})
}

func chainLess(a, b *Session) bool {
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.Before(b.StartedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func generateExitToken() (string, error) {
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
