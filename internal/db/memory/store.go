// Package memory provides an in-process implementation of db.Store backed by go-cache.
// It is used for local development (STORE=memory) and by tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/types"
)

const (
	sessionPrefix = "session:"
	promptPrefix  = "prompts:"
	tokenPrefix   = "token:"
	progressKey   = "progress"
)

// Store keeps every record in a go-cache instance without expiration.
// A single mutex makes each method atomic, mirroring the per-transaction
// guarantees of the PostgreSQL store.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
	now   func() time.Time
}

var _ db.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		cache: cache.New(cache.NoExpiration, 0),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error { return nil }

// Close drops every record
func (s *Store) Close() {
	s.cache.Flush()
}

// -----------------------------------------------------------------------------
// Prompts
// -----------------------------------------------------------------------------

func (s *Store) prompts(pt types.PromptType) []types.Prompt {
	if x, found := s.cache.Get(promptPrefix + string(pt)); found {
		return x.([]types.Prompt)
	}
	return nil
}

// ActivePrompt returns the active prompt of a type
func (s *Store) ActivePrompt(_ context.Context, pt types.PromptType) (*types.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.prompts(pt) {
		if p.IsActive {
			return &p, nil
		}
	}
	return nil, &db.NotFoundError{Resource: "active prompt", ID: string(pt)}
}

// CreatePromptVersion appends version max+1 and makes it the only active prompt
func (s *Store) CreatePromptVersion(_ context.Context, pt types.PromptType, content, modifiedBy string) (*types.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.prompts(pt)
	next := 1
	updated := make([]types.Prompt, 0, len(existing)+1)
	for _, p := range existing {
		if p.Version >= next {
			next = p.Version + 1
		}
		p.IsActive = false
		updated = append(updated, p)
	}

	created := types.Prompt{
		ID:         uuid.New(),
		PromptType: pt,
		Content:    content,
		Version:    next,
		CreatedAt:  s.now(),
		ModifiedBy: modifiedBy,
		IsActive:   true,
	}
	updated = append(updated, created)
	s.cache.Set(promptPrefix+string(pt), updated, cache.NoExpiration)
	return &created, nil
}

// PromptHistory returns every version, newest first
func (s *Store) PromptHistory(_ context.Context, pt types.PromptType) ([]types.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append([]types.Prompt{}, s.prompts(pt)...)
	sort.Slice(history, func(i, j int) bool { return history[i].Version > history[j].Version })
	return history, nil
}

// RevertPrompt reactivates an existing version
func (s *Store) RevertPrompt(_ context.Context, pt types.PromptType, version int) (*types.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.prompts(pt)
	target := -1
	for i, p := range existing {
		if p.Version == version {
			target = i
		}
	}
	if target < 0 {
		return nil, &db.NotFoundError{Resource: "prompt version", ID: fmt.Sprintf("%s@%d", pt, version)}
	}

	updated := make([]types.Prompt, len(existing))
	for i, p := range existing {
		p.IsActive = i == target
		updated[i] = p
	}
	s.cache.Set(promptPrefix+string(pt), updated, cache.NoExpiration)
	reverted := updated[target]
	return &reverted, nil
}

// -----------------------------------------------------------------------------
// Sessions
// -----------------------------------------------------------------------------

// cloneSession deep-copies a session so callers never share state with the cache
func cloneSession(in *types.Session) (*types.Session, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out types.Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	// JSON drops a nil/empty distinction the store relies on
	if out.BulletIterations == nil {
		out.BulletIterations = []types.BulletSlot{}
	}
	return &out, nil
}

func (s *Store) session(id uuid.UUID) (*types.Session, error) {
	if x, found := s.cache.Get(sessionPrefix + id.String()); found {
		return x.(*types.Session), nil
	}
	return nil, &db.NotFoundError{Resource: "session", ID: id.String()}
}

func (s *Store) putSession(sess *types.Session) error {
	stored, err := cloneSession(sess)
	if err != nil {
		return &db.StorageError{Op: "store session", Cause: err}
	}
	s.cache.Set(sessionPrefix+sess.ID.String(), stored, cache.NoExpiration)
	return nil
}

// mutate applies fn to a copy of the session and stores the result
func (s *Store) mutate(id uuid.UUID, fn func(*types.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.session(id)
	if err != nil {
		return err
	}
	working, err := cloneSession(current)
	if err != nil {
		return &db.StorageError{Op: "copy session", Cause: err}
	}
	if err := fn(working); err != nil {
		return err
	}
	working.UpdatedAt = s.now()
	return s.putSession(working)
}

// CreateSession stores a new session
func (s *Store) CreateSession(_ context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.cache.Get(sessionPrefix + sess.ID.String()); found {
		return &db.StorageError{Op: "create session", Cause: fmt.Errorf("session %s already exists", sess.ID)}
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	return s.putSession(sess)
}

// GetSession returns a copy of a session
func (s *Store) GetSession(_ context.Context, id uuid.UUID) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.session(id)
	if err != nil {
		return nil, err
	}
	out, err := cloneSession(current)
	if err != nil {
		return nil, &db.StorageError{Op: "copy session", Cause: err}
	}
	return out, nil
}

// ListSessions returns copies of every session, oldest first
func (s *Store) ListSessions(context.Context) ([]types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := []types.Session{}
	for key, item := range s.cache.Items() {
		if len(key) <= len(sessionPrefix) || key[:len(sessionPrefix)] != sessionPrefix {
			continue
		}
		out, err := cloneSession(item.Object.(*types.Session))
		if err != nil {
			return nil, &db.StorageError{Op: "copy session", Cause: err}
		}
		sessions = append(sessions, *out)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

// SetControlProfile stores the generated control profile
func (s *Store) SetControlProfile(_ context.Context, id uuid.UUID, profile types.Profile) error {
	return s.mutate(id, func(sess *types.Session) error {
		sess.ControlProfile = &profile
		return nil
	})
}

// SetAlignedProfile stores the generated aligned profile
func (s *Store) SetAlignedProfile(_ context.Context, id uuid.UUID, profile types.Profile) error {
	return s.mutate(id, func(sess *types.Session) error {
		sess.AlignedProfile = &profile
		return nil
	})
}

// InitBulletSlots stores the initial slots unless slots already exist
func (s *Store) InitBulletSlots(_ context.Context, id uuid.UUID, slots []types.BulletSlot) (bool, error) {
	created := false
	err := s.mutate(id, func(sess *types.Session) error {
		if len(sess.BulletIterations) > 0 {
			return nil
		}
		sess.BulletIterations = append([]types.BulletSlot{}, slots...)
		sortSlots(sess.BulletIterations)
		created = true
		return nil
	})
	return created, err
}

func sortSlots(slots []types.BulletSlot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].BulletIndex < slots[j].BulletIndex })
}

// slotFor returns the slot with the index, creating it when missing
func slotFor(sess *types.Session, bulletIndex int) *types.BulletSlot {
	if slot := sess.Slot(bulletIndex); slot != nil {
		return slot
	}
	sess.BulletIterations = append(sess.BulletIterations, types.BulletSlot{BulletIndex: bulletIndex, Iterations: []types.Iteration{}})
	sortSlots(sess.BulletIterations)
	return sess.Slot(bulletIndex)
}

// AppendIteration stores it as iteration max+1 of the slot
func (s *Store) AppendIteration(_ context.Context, id uuid.UUID, bulletIndex int, it types.Iteration) (int, error) {
	var number int
	err := s.mutate(id, func(sess *types.Session) error {
		slot := slotFor(sess, bulletIndex)
		number = 1
		if latest := slot.Latest(); latest != nil {
			number = latest.IterationNumber + 1
		}
		it.IterationNumber = number
		slot.Iterations = append(slot.Iterations, it)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return number, nil
}

// SaveIteration upserts an iteration by number and optionally marks it final
func (s *Store) SaveIteration(_ context.Context, id uuid.UUID, bulletIndex int, it types.Iteration, final bool) error {
	return s.mutate(id, func(sess *types.Session) error {
		slot := slotFor(sess, bulletIndex)
		replaced := false
		for i := range slot.Iterations {
			if slot.Iterations[i].IterationNumber == it.IterationNumber {
				if it.PromptVersion == nil {
					it.PromptVersion = slot.Iterations[i].PromptVersion
				}
				if it.PromptType == "" {
					it.PromptType = slot.Iterations[i].PromptType
				}
				slot.Iterations[i] = it
				replaced = true
			}
		}
		if !replaced {
			slot.Iterations = append(slot.Iterations, it)
			sort.Slice(slot.Iterations, func(i, j int) bool {
				return slot.Iterations[i].IterationNumber < slot.Iterations[j].IterationNumber
			})
		}
		if final {
			n := it.IterationNumber
			slot.FinalIteration = &n
		}
		return nil
	})
}

// SaveControlProfileResponses stores the participant's survey answers
func (s *Store) SaveControlProfileResponses(_ context.Context, id uuid.UUID, responses types.ControlProfileResponses) error {
	return s.mutate(id, func(sess *types.Session) error {
		sess.ControlProfileResponses = &responses
		return nil
	})
}

// MergeFeedback merges fields into feedback and marks the session completed
func (s *Store) MergeFeedback(_ context.Context, id uuid.UUID, fields map[string]any) error {
	// Round-trip through JSON so stored values match what PostgreSQL returns
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("failed to unmarshal feedback: %w", err)
	}

	return s.mutate(id, func(sess *types.Session) error {
		if sess.Feedback == nil {
			sess.Feedback = map[string]any{}
		}
		for k, v := range normalized {
			sess.Feedback[k] = v
		}
		sess.Completed = true
		return nil
	})
}

// MarkCompleted flags a session as completed
func (s *Store) MarkCompleted(_ context.Context, id uuid.UUID) error {
	return s.mutate(id, func(sess *types.Session) error {
		sess.Completed = true
		return nil
	})
}

// CountCompleted returns the number of completed sessions
func (s *Store) CountCompleted(ctx context.Context) (int, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if sess.Completed {
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Access tokens
// -----------------------------------------------------------------------------

// InsertTokens stores new tokens and skips codes that already exist
func (s *Store) InsertTokens(_ context.Context, tokens []types.AccessToken) ([]types.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]types.AccessToken, 0, len(tokens))
	for _, t := range tokens {
		if err := s.cache.Add(tokenPrefix+t.Token, t, cache.NoExpiration); err != nil {
			continue
		}
		stored = append(stored, t)
	}
	return stored, nil
}

// GetToken returns one access token
func (s *Store) GetToken(_ context.Context, token string) (*types.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x, found := s.cache.Get(tokenPrefix + token); found {
		t := x.(types.AccessToken)
		return &t, nil
	}
	return nil, &db.NotFoundError{Resource: "access token"}
}

// ListTokens returns every access token, newest first
func (s *Store) ListTokens(context.Context) ([]types.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := []types.AccessToken{}
	for key, item := range s.cache.Items() {
		if len(key) > len(tokenPrefix) && key[:len(tokenPrefix)] == tokenPrefix {
			tokens = append(tokens, item.Object.(types.AccessToken))
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].Token < tokens[j].Token
		}
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// InvalidateToken revokes a token
func (s *Store) InvalidateToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, found := s.cache.Get(tokenPrefix + token)
	if !found {
		return &db.NotFoundError{Resource: "access token"}
	}
	t := x.(types.AccessToken)
	t.Invalidated = true
	s.cache.Set(tokenPrefix+token, t, cache.NoExpiration)
	return nil
}

// MarkTokenUsed consumes an unused token and links it to a session
func (s *Store) MarkTokenUsed(_ context.Context, token string, sessionID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, found := s.cache.Get(tokenPrefix + token)
	if !found {
		return false, nil
	}
	t := x.(types.AccessToken)
	if !t.Usable() {
		return false, nil
	}
	t.Used = true
	t.UsedAt = &at
	t.SessionID = &sessionID
	s.cache.Set(tokenPrefix+token, t, cache.NoExpiration)
	return true, nil
}

// -----------------------------------------------------------------------------
// Progress log
// -----------------------------------------------------------------------------

// AppendProgress appends one event to the progress log
func (s *Store) AppendProgress(_ context.Context, event types.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []types.ProgressEvent
	if x, found := s.cache.Get(progressKey); found {
		events = x.([]types.ProgressEvent)
	}
	events = append(append([]types.ProgressEvent{}, events...), event)
	s.cache.Set(progressKey, events, cache.NoExpiration)
	return nil
}

// ListProgress returns the progress log in insertion order
func (s *Store) ListProgress(context.Context) ([]types.ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x, found := s.cache.Get(progressKey); found {
		return append([]types.ProgressEvent{}, x.([]types.ProgressEvent)...), nil
	}
	return []types.ProgressEvent{}, nil
}
