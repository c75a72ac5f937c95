package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentgen/internal/domain"
)

// MemoryStore is a process-local domain.Store used in development without a
// database and in tests. Transactions are serialized and their writes are
// staged until commit, so a failing transaction leaves no trace.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	jobs          map[string]*domain.Job
	aliases       map[string]string
	users         []domain.User
	contents      map[string]*domain.ContentEntity
	artifacts     map[string][]domain.Artifact
	notifications []*domain.Notification
	claimed       map[string]time.Time

	// FailOn, when set, is consulted before every write with the operation
	// name; a non-nil result is returned as the write error.
	FailOn func(op string) error

	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*domain.Job),
		aliases:   make(map[string]string),
		contents:  make(map[string]*domain.ContentEntity),
		artifacts: make(map[string][]domain.Artifact),
		claimed:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// AddUser registers a user in the directory.
func (s *MemoryStore) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users = append(s.users, u)
}

// PutJob stores a copy of job, assigning an id and timestamps when missing.
func (s *MemoryStore) PutJob(job *domain.Job) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := job.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.jobs[c.ID] = c
	return c.Clone()
}

// JobSnapshot returns a copy of the stored job or nil.
func (s *MemoryStore) JobSnapshot(id string) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Clone()
}

// JobCount returns the number of stored jobs.
func (s *MemoryStore) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// ContentCount returns the number of content entities.
func (s *MemoryStore) ContentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contents)
}

// ArtifactCount returns the number of artifacts across all content entities.
func (s *MemoryStore) ArtifactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, list := range s.artifacts {
		n += len(list)
	}
	return n
}

// NotificationRecords returns copies of every stored notification in insertion order.
func (s *MemoryStore) NotificationRecords() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	return out
}

func (s *MemoryStore) Jobs() domain.JobRepository                   { return memJobs{s} }
func (s *MemoryStore) Users() domain.UserDirectory                  { return memUsers{s} }
func (s *MemoryStore) Content() domain.ContentReader                { return memContent{s} }
func (s *MemoryStore) Notifications() domain.NotificationRepository { return memNotifications{s} }

// WithTx serializes transactions and applies the staged writes only when fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:         s,
		jobs:      make(map[string]*domain.Job),
		contents:  make(map[string]*domain.ContentEntity),
		artifacts: make(map[string][]domain.Artifact),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) fail(op string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op)
}

func aliasKey(d domain.Domain, externalID string) string {
	return string(d) + "|" + externalID
}

type memJobs struct{ s *MemoryStore }

func (r memJobs) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (r memJobs) FindByExternalID(_ context.Context, d domain.Domain, externalID string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job := r.s.byExternalLocked(d, externalID); job != nil {
		return job.Clone(), nil
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) byExternalLocked(d domain.Domain, externalID string) *domain.Job {
	for _, job := range s.jobs {
		if job.Domain == d && job.ExternalJobID == externalID {
			return job
		}
	}
	if id, ok := s.aliases[aliasKey(d, externalID)]; ok {
		return s.jobs[id]
	}
	return nil
}

func (r memJobs) FindRecentOpen(_ context.Context, d domain.Domain, since time.Time, externalID string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *domain.Job
	for _, job := range r.s.jobs {
		if job.Domain != d || job.Status.IsTerminal() || job.CreatedAt.Before(since) {
			continue
		}
		if job.ExternalJobID != "" && job.ExternalJobID != externalID {
			continue
		}
		if r.s.aliasedElsewhereLocked(job.ID, d, externalID) {
			continue
		}
		if best == nil || job.CreatedAt.After(best.CreatedAt) {
			best = job
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best.Clone(), nil
}

func (s *MemoryStore) aliasedElsewhereLocked(jobID string, d domain.Domain, externalID string) bool {
	want := aliasKey(d, externalID)
	for key, id := range s.aliases {
		if id == jobID && key != want {
			return true
		}
	}
	return false
}

func (r memJobs) Adopt(_ context.Context, jobID string, d domain.Domain, externalID string) error {
	if err := r.s.fail("Adopt"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Domain != d || job.Status.IsTerminal() ||
		(job.ExternalJobID != "" && job.ExternalJobID != externalID) ||
		r.s.aliasedElsewhereLocked(jobID, d, externalID) {
		return domain.ErrAlreadyBound
	}
	key := aliasKey(d, externalID)
	if _, exists := r.s.aliases[key]; !exists {
		r.s.aliases[key] = jobID
	}
	if job.ExternalJobID == "" {
		job.ExternalJobID = externalID
	}
	job.Correlation = domain.CorrelationAdopted
	job.UpdatedAt = r.s.now()
	return nil
}

func (r memJobs) CreateIfAbsent(_ context.Context, job *domain.Job) (*domain.Job, bool, error) {
	if err := r.s.fail("CreateIfAbsent"); err != nil {
		return nil, false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job.ExternalJobID != "" {
		for _, existing := range r.s.jobs {
			if existing.Domain == job.Domain && existing.ExternalJobID == job.ExternalJobID {
				return existing.Clone(), false, nil
			}
		}
	}
	c := job.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = r.s.now()
	c.UpdatedAt = c.CreatedAt
	r.s.jobs[c.ID] = c
	return c.Clone(), true, nil
}

type memUsers struct{ s *MemoryStore }

func (r memUsers) Exists(_ context.Context, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r memUsers) Earliest(_ context.Context) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.users) == 0 {
		return nil, domain.ErrNotFound
	}
	users := append([]domain.User(nil), r.s.users...)
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	u := users[0]
	return &u, nil
}

type memContent struct{ s *MemoryStore }

func (r memContent) ContentByJob(_ context.Context, jobID string) (*domain.ContentEntity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contents[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r memContent) Artifacts(_ context.Context, contentID string) ([]domain.Artifact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.Artifact(nil), r.s.artifacts[contentID]...), nil
}

type memNotifications struct{ s *MemoryStore }

func (r memNotifications) Insert(_ context.Context, n *domain.Notification) (bool, error) {
	if err := r.s.fail("InsertNotification"); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.notifications {
		if existing.DedupeKey == n.DedupeKey {
			return false, nil
		}
	}
	c := *n
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	n.ID = c.ID
	c.CreatedAt = r.s.now()
	r.s.notifications = append(r.s.notifications, &c)
	return true, nil
}

func (r memNotifications) ClaimPending(_ context.Context, limit int, lease time.Duration) ([]domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	var out []domain.Notification
	for _, n := range r.s.notifications {
		if len(out) >= limit {
			break
		}
		if n.DispatchedAt != nil {
			continue
		}
		if until, ok := r.s.claimed[n.ID]; ok && until.After(now) {
			continue
		}
		r.s.claimed[n.ID] = now.Add(lease)
		n.DispatchAttempts++
		out = append(out, *n)
	}
	return out, nil
}

func (r memNotifications) MarkDispatched(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == id {
			t := at
			n.DispatchedAt = &t
			delete(r.s.claimed, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r memNotifications) Release(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.claimed, id)
	return nil
}

func (r memNotifications) ListPending(_ context.Context, limit int) ([]domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.s.notifications {
		if len(out) >= limit {
			break
		}
		if n.DispatchedAt == nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

// memTx stages writes; reads see staged values first.
type memTx struct {
	s         *MemoryStore
	jobs      map[string]*domain.Job
	contents  map[string]*domain.ContentEntity
	artifacts map[string][]domain.Artifact
}

func (t *memTx) LockJob(_ context.Context, jobID string) (*domain.Job, error) {
	if job, ok := t.jobs[jobID]; ok {
		return job.Clone(), nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	job, ok := t.s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (t *memTx) SaveJob(_ context.Context, job *domain.Job) error {
	if err := t.s.fail("SaveJob"); err != nil {
		return err
	}
	t.s.mu.Lock()
	_, ok := t.s.jobs[job.ID]
	t.s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	t.jobs[job.ID] = job.Clone()
	return nil
}

func (t *memTx) UpsertContent(_ context.Context, entity *domain.ContentEntity) (*domain.ContentEntity, error) {
	if err := t.s.fail("UpsertContent"); err != nil {
		return nil, err
	}
	out := *entity
	existing, ok := t.contents[entity.JobID]
	if !ok {
		t.s.mu.Lock()
		existing, ok = t.s.contents[entity.JobID]
		t.s.mu.Unlock()
	}
	now := t.s.clock()
	if ok {
		out.ID = existing.ID
		out.CreatedAt = existing.CreatedAt
	} else {
		if out.ID == "" {
			out.ID = uuid.NewString()
		}
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	staged := out
	t.contents[entity.JobID] = &staged
	return &out, nil
}

func (t *memTx) DeleteArtifacts(_ context.Context, contentID string) (int, error) {
	if err := t.s.fail("DeleteArtifacts"); err != nil {
		return 0, err
	}
	current, ok := t.artifacts[contentID]
	if !ok {
		t.s.mu.Lock()
		current = t.s.artifacts[contentID]
		t.s.mu.Unlock()
	}
	t.artifacts[contentID] = []domain.Artifact{}
	return len(current), nil
}

func (t *memTx) InsertArtifacts(_ context.Context, contentID string, artifacts []domain.Artifact) error {
	if err := t.s.fail("InsertArtifacts"); err != nil {
		return err
	}
	current, ok := t.artifacts[contentID]
	if !ok {
		t.s.mu.Lock()
		current = append([]domain.Artifact(nil), t.s.artifacts[contentID]...)
		t.s.mu.Unlock()
	}
	seen := make(map[int]bool, len(current)+len(artifacts))
	for _, a := range current {
		seen[a.Position] = true
	}
	now := t.s.clock()
	for _, a := range artifacts {
		if seen[a.Position] {
			return fmt.Errorf("duplicate artifact position %d for content %s", a.Position, contentID)
		}
		seen[a.Position] = true
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.ContentID = contentID
		a.CreatedAt = now
		current = append(current, a)
	}
	t.artifacts[contentID] = current
	return nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	now := t.s.now()
	for id, staged := range t.jobs {
		live, ok := t.s.jobs[id]
		if !ok {
			continue
		}
		live.Status = staged.Status
		live.Progress = staged.Progress
		live.Result = staged.Result
		live.Error = staged.Error
		live.LastEventAt = staged.LastEventAt
		live.StartedAt = staged.StartedAt
		live.CompletedAt = staged.CompletedAt
		live.UpdatedAt = now
	}
	for jobID, c := range t.contents {
		t.s.contents[jobID] = c
	}
	for contentID, list := range t.artifacts {
		if len(list) == 0 {
			delete(t.s.artifacts, contentID)
			continue
		}
		t.s.artifacts[contentID] = list
	}
}

func (s *MemoryStore) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

var (
	_ domain.Store = (*MemoryStore)(nil)
	_ domain.Tx    = (*memTx)(nil)
)
