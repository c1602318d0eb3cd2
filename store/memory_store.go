package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/utils"
)

// partition is everything owned by one user. Transactions work on a clone and swap it in on success.
type partition struct {
	account  models.User
	tasks    map[uint]models.Task
	subtasks map[uint]models.Subtask
	logins   map[string]models.DailyLogin
}

func (p *partition) clone() *partition {
	c := &partition{
		account:  p.account,
		tasks:    make(map[uint]models.Task, len(p.tasks)),
		subtasks: make(map[uint]models.Subtask, len(p.subtasks)),
		logins:   make(map[string]models.DailyLogin, len(p.logins)),
	}
	if p.account.LastLoginDate != nil {
		d := *p.account.LastLoginDate
		c.account.LastLoginDate = &d
	}
	if p.account.ChallengeAwardedDate != nil {
		d := *p.account.ChallengeAwardedDate
		c.account.ChallengeAwardedDate = &d
	}
	for k, v := range p.tasks {
		c.tasks[k] = v
	}
	for k, v := range p.subtasks {
		c.subtasks[k] = v
	}
	for k, v := range p.logins {
		c.logins[k] = v
	}
	return c
}

func (p *partition) withSubtasks(t models.Task) models.Task {
	t.Subtasks = nil
	for _, s := range p.subtasks {
		if s.TaskID == t.ID {
			t.Subtasks = append(t.Subtasks, s)
		}
	}
	sort.Slice(t.Subtasks, func(i, j int) bool { return t.Subtasks[i].ID < t.Subtasks[j].ID })
	return t
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process. It backs the tests and single-node runs without MySQL.
type MemoryStore struct {
	mu          sync.RWMutex
	users       *utils.KeyedMutex
	nextID      uint
	parts       map[uint]*partition
	leaderboard map[uint]models.LeaderboardEntry
	prefs       map[uint]models.NotificationPreference
	clock       utils.Clock

	txErr error
	lbErr error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       utils.NewKeyedMutex(),
		parts:       map[uint]*partition{},
		leaderboard: map[uint]models.LeaderboardEntry{},
		prefs:       map[uint]models.NotificationPreference{},
		clock:       utils.RealClock{},
	}
}

// WithClock sets the clock used for CreatedAt/UpdatedAt stamps.
func (s *MemoryStore) WithClock(c utils.Clock) *MemoryStore {
	s.clock = c
	return s
}

// FailTransactions makes every WithinUser call return err until called with nil.
func (s *MemoryStore) FailTransactions(err error) {
	s.mu.Lock()
	s.txErr = err
	s.mu.Unlock()
}

// FailLeaderboard makes leaderboard writes return err until called with nil.
func (s *MemoryStore) FailLeaderboard(err error) {
	s.mu.Lock()
	s.lbErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateAccount(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, p := range s.parts {
		if email != "" && strings.ToLower(p.account.Email) == email {
			return ErrDuplicate
		}
	}
	u.ID = s.id()
	now := s.clock.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	u.SchemaVersion = models.CurrentSchemaVersion
	if u.Theme == "" {
		u.Theme = "light"
	}
	s.parts[u.ID] = &partition{
		account:  *u,
		tasks:    map[uint]models.Task{},
		subtasks: map[uint]models.Subtask{},
		logins:   map[string]models.DailyLogin{},
	}
	return nil
}

func (s *MemoryStore) Account(ctx context.Context, userID uint) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return p.clone().account, nil
}

func (s *MemoryStore) AccountByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findAccount(ctx, func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *MemoryStore) AccountByProvider(ctx context.Context, provider, providerID string) (models.User, error) {
	return s.findAccount(ctx, func(u models.User) bool { return u.Provider == provider && u.ProviderID == providerID })
}

func (s *MemoryStore) findAccount(ctx context.Context, match func(models.User) bool) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.parts {
		if match(p.account) {
			return p.clone().account, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, userID uint, name, theme string) (models.User, error) {
	var out models.User
	err := s.mutate(ctx, userID, func(p *partition) error {
		if name != "" {
			p.account.Name = name
		}
		if theme != "" {
			p.account.Theme = theme
		}
		p.account.UpdatedAt = s.clock.Now()
		out = p.account
		return nil
	})
	return out, err
}

// mutate applies fn to the live partition under both the user lock and the store lock.
func (s *MemoryStore) mutate(ctx context.Context, userID uint, fn func(p *partition) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.users.Lock(userID)
	defer unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[userID]
	if !ok {
		return ErrNotFound
	}
	return fn(p)
}

func (s *MemoryStore) WithinUser(ctx context.Context, userID uint, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.users.Lock(userID)
	defer unlock()

	s.mu.RLock()
	if s.txErr != nil {
		err := s.txErr
		s.mu.RUnlock()
		return err
	}
	live, ok := s.parts[userID]
	if !ok {
		s.mu.RUnlock()
		return ErrNotFound
	}
	work := live.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{store: s, part: work}); err != nil {
		return err
	}
	// a cancelled caller must not observe a half-finished commit
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.parts[userID] = work
	s.mu.Unlock()
	return nil
}

type memTx struct {
	store *MemoryStore
	part  *partition
}

func (t *memTx) Account() (models.User, error) {
	return t.part.account, nil
}

func (t *memTx) SaveAccount(u models.User) error {
	if u.ID != t.part.account.ID {
		return fmt.Errorf("save account %d inside transaction for %d", u.ID, t.part.account.ID)
	}
	u.UpdatedAt = t.store.clock.Now()
	t.part.account = u
	return nil
}

func (t *memTx) Task(id uint) (models.Task, error) {
	task, ok := t.part.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return t.part.withSubtasks(task), nil
}

func (t *memTx) CreateTask(task *models.Task) error {
	t.store.mu.Lock()
	task.ID = t.store.id()
	t.store.mu.Unlock()
	now := t.store.clock.Now()
	task.UserID = t.part.account.ID
	task.CreatedAt, task.UpdatedAt = now, now
	stored := *task
	stored.Subtasks = nil
	t.part.tasks[task.ID] = stored
	return nil
}

func (t *memTx) SetTaskCompleted(id uint, completed bool) error {
	task, ok := t.part.tasks[id]
	if !ok {
		return ErrNotFound
	}
	task.Completed = completed
	task.UpdatedAt = t.store.clock.Now()
	t.part.tasks[id] = task
	return nil
}

func (t *memTx) DeleteTask(id uint) error {
	if _, ok := t.part.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(t.part.tasks, id)
	for sid, s := range t.part.subtasks {
		if s.TaskID == id {
			delete(t.part.subtasks, sid)
		}
	}
	return nil
}

func (t *memTx) Subtask(id uint) (models.Subtask, error) {
	s, ok := t.part.subtasks[id]
	if !ok {
		return models.Subtask{}, ErrNotFound
	}
	return s, nil
}

func (t *memTx) CreateSubtask(s *models.Subtask) error {
	if _, ok := t.part.tasks[s.TaskID]; !ok {
		return ErrNotFound
	}
	t.store.mu.Lock()
	s.ID = t.store.id()
	t.store.mu.Unlock()
	now := t.store.clock.Now()
	s.UserID = t.part.account.ID
	s.CreatedAt, s.UpdatedAt = now, now
	t.part.subtasks[s.ID] = *s
	return nil
}

func (t *memTx) SetSubtaskCompleted(id uint, completed bool) error {
	s, ok := t.part.subtasks[id]
	if !ok {
		return ErrNotFound
	}
	s.Completed = completed
	s.UpdatedAt = t.store.clock.Now()
	t.part.subtasks[id] = s
	return nil
}

func (t *memTx) DeleteSubtask(id uint) error {
	if _, ok := t.part.subtasks[id]; !ok {
		return ErrNotFound
	}
	delete(t.part.subtasks, id)
	return nil
}

func (t *memTx) CountCompletedBetween(start, end time.Time) (int, error) {
	n := 0
	for _, task := range t.part.tasks {
		if task.Completed && !task.Date.Before(start) && task.Date.Before(end) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) RecordLogin(rec models.DailyLogin) error {
	if _, ok := t.part.logins[rec.LoginDate]; ok {
		return ErrDuplicate
	}
	t.store.mu.Lock()
	rec.ID = t.store.id()
	t.store.mu.Unlock()
	rec.UserID = t.part.account.ID
	rec.CreatedAt = t.store.clock.Now()
	t.part.logins[rec.LoginDate] = rec
	return nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, userID uint, f TaskFilter) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		if matchesFilter(t, f) {
			out = append(out, p.withSubtasks(t))
		}
	}
	sortTasks(out, f)
	return out, nil
}

func matchesFilter(t models.Task, f TaskFilter) bool {
	switch f.Status {
	case StatusCompleted:
		if !t.Completed {
			return false
		}
	case StatusPending:
		if t.Completed {
			return false
		}
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
		return false
	}
	if f.From != nil && t.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.Date.Before(*f.To) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(t.Title + "\n" + t.Description + "\n" + t.Tags + "\n" + t.Category)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

func sortTasks(ts []models.Task, f TaskFilter) {
	less := func(a, b models.Task) bool {
		switch f.SortBy {
		case SortByPriority:
			ra, rb := models.PriorityRank(a.Priority), models.PriorityRank(b.Priority)
			if ra != rb {
				return ra < rb
			}
			return a.Date.Before(b.Date)
		case SortByCreated:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		default:
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			return a.ID < b.ID
		}
	}
	sort.SliceStable(ts, func(i, j int) bool {
		if f.Desc {
			return less(ts[j], ts[i])
		}
		return less(ts[i], ts[j])
	})
}

func (s *MemoryStore) GetTask(ctx context.Context, userID, id uint) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[userID]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	t, ok := p.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return p.withSubtasks(t), nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, userID uint, in models.Task) (models.Task, error) {
	var out models.Task
	err := s.mutate(ctx, userID, func(p *partition) error {
		t, ok := p.tasks[in.ID]
		if !ok {
			return ErrNotFound
		}
		t.Title, t.Description, t.Date = in.Title, in.Description, in.Date
		t.Priority, t.Category, t.Tags = in.Priority, in.Category, in.Tags
		t.UpdatedAt = s.clock.Now()
		p.tasks[t.ID] = t
		out = p.withSubtasks(t)
		return nil
	})
	return out, err
}

func (s *MemoryStore) GetSubtask(ctx context.Context, userID, id uint) (models.Subtask, error) {
	if err := ctx.Err(); err != nil {
		return models.Subtask{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[userID]
	if !ok {
		return models.Subtask{}, ErrNotFound
	}
	st, ok := p.subtasks[id]
	if !ok {
		return models.Subtask{}, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) UpdateSubtask(ctx context.Context, userID uint, in models.Subtask) (models.Subtask, error) {
	var out models.Subtask
	err := s.mutate(ctx, userID, func(p *partition) error {
		st, ok := p.subtasks[in.ID]
		if !ok {
			return ErrNotFound
		}
		st.Title, st.Description, st.Date, st.Priority = in.Title, in.Description, in.Date, in.Priority
		st.UpdatedAt = s.clock.Now()
		p.subtasks[st.ID] = st
		out = st
		return nil
	})
	return out, err
}

func (s *MemoryStore) PendingTasksBetween(ctx context.Context, start, end time.Time) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Task
	for _, p := range s.parts {
		for _, t := range p.tasks {
			if !t.Completed && !t.Date.Before(start) && t.Date.Before(end) {
				out = append(out, t)
			}
		}
	}
	sortTasks(out, TaskFilter{})
	return out, nil
}

func (s *MemoryStore) Preference(ctx context.Context, userID uint) (models.NotificationPreference, error) {
	if err := ctx.Err(); err != nil {
		return models.NotificationPreference{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return models.DefaultPreference(userID), nil
}

func (s *MemoryStore) SavePreference(ctx context.Context, p models.NotificationPreference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parts[p.UserID]; !ok {
		return ErrNotFound
	}
	s.prefs[p.UserID] = p
	return nil
}

func (s *MemoryStore) SummaryRecipients(ctx context.Context) ([]uint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uint
	for id := range s.parts {
		if p, ok := s.prefs[id]; ok && !p.DailySummary {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) WriteLeaderboardEntry(ctx context.Context, e models.LeaderboardEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lbErr != nil {
		return s.lbErr
	}
	e.UpdatedAt = s.clock.Now()
	s.leaderboard[e.UserID] = e
	return nil
}

// ranked returns every entry, highest points first, ties by user id.
func (s *MemoryStore) ranked() []models.LeaderboardEntry {
	out := make([]models.LeaderboardEntry, 0, len(s.leaderboard))
	for _, e := range s.leaderboard {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (s *MemoryStore) TopEntries(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.ranked()
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *MemoryStore) Standing(ctx context.Context, userID uint) (models.Standing, error) {
	if err := ctx.Err(); err != nil {
		return models.Standing{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, e := range s.ranked() {
		if e.UserID == userID {
			return models.Standing{Rank: i + 1, Entry: e}, nil
		}
	}
	return models.Standing{}, ErrNotFound
}

func (s *MemoryStore) Counts(ctx context.Context, dayStart, dayEnd time.Time) (Counts, error) {
	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Counts
	c.Users = int64(len(s.parts))
	for _, p := range s.parts {
		c.Tasks += int64(len(p.tasks))
		for _, t := range p.tasks {
			if t.Completed && !t.Date.Before(dayStart) && t.Date.Before(dayEnd) {
				c.CompletedToday++
			}
		}
	}
	return c, nil
}
