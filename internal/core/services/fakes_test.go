package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
)

// scriptedLLM answers each stage from a queue of canned responses.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     []ports.CompletionRequest
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{responses: map[string][]string{}, errs: map[string]error{}}
}

func (l *scriptedLLM) on(stage string, responses ...string) *scriptedLLM {
	l.responses[stage] = append(l.responses[stage], responses...)
	return l
}

func (l *scriptedLLM) fail(stage string, err error) *scriptedLLM {
	l.errs[stage] = err
	return l
}

func (l *scriptedLLM) Complete(_ context.Context, req ports.CompletionRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, req)
	if err := l.errs[req.Stage]; err != nil {
		return "", err
	}
	queue := l.responses[req.Stage]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted response for stage %q", req.Stage)
	}
	l.responses[req.Stage] = queue[1:]
	return queue[0], nil
}

func (l *scriptedLLM) stages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.Stage)
	}
	return out
}

func (l *scriptedLLM) lastCall(stage string) ports.CompletionRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.calls) - 1; i >= 0; i-- {
		if l.calls[i].Stage == stage {
			return l.calls[i]
		}
	}
	return ports.CompletionRequest{}
}

// memStore backs the task repository and the semantic index so the
// transactor can roll both back together.
type memStore struct {
	mu        sync.Mutex
	tasks     map[string]domain.Task
	vectors   map[string]ports.IndexEntry
	findCalls int
	failOn    string
}

func newMemStore() *memStore {
	return &memStore{tasks: map[string]domain.Task{}, vectors: map[string]ports.IndexEntry{}}
}

func (m *memStore) check(op string) error {
	if m.failOn == op {
		return fmt.Errorf("store: %s failed", op)
	}
	return nil
}

type memTaskRepo struct{ *memStore }

func (r memTaskRepo) Create(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check("create"); err != nil {
		return err
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	r.tasks[task.ID] = *task
	return nil
}

func (r memTaskRepo) GetByID(_ context.Context, ownerID, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, nil
	}
	return &t, nil
}

func (r memTaskRepo) Find(_ context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	if err := r.check("find"); err != nil {
		return nil, err
	}
	out := []domain.Task{}
	for _, t := range r.tasks {
		t := t
		if t.OwnerID == ownerID && filter.Matches(&t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r memTaskRepo) Update(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check("update"); err != nil {
		return err
	}
	existing, ok := r.tasks[task.ID]
	if !ok || existing.OwnerID != task.OwnerID {
		return fmt.Errorf("record not found")
	}
	task.UpdatedAt = time.Now()
	r.tasks[task.ID] = *task
	return nil
}

func (r memTaskRepo) Delete(_ context.Context, ownerID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check("delete"); err != nil {
		return false, err
	}
	t, ok := r.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return false, nil
	}
	delete(r.tasks, id)
	return true, nil
}

type memIndex struct{ *memStore }

func (x memIndex) Upsert(_ context.Context, entry ports.IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.check("index"); err != nil {
		return err
	}
	x.vectors[entry.TaskID] = entry
	return nil
}

func (x memIndex) Delete(_ context.Context, taskID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.vectors, taskID)
	return nil
}

// Search ranks by the first vector component, closest first.
func (x memIndex) Search(_ context.Context, ownerID string, vec []float32, topK int) ([]ports.SearchHit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var hits []ports.SearchHit
	for _, e := range x.vectors {
		if e.OwnerID != ownerID {
			continue
		}
		d := float64(e.Vector[0] - vec[0])
		if d < 0 {
			d = -d
		}
		hits = append(hits, ports.SearchHit{TaskID: e.TaskID, Score: 1 - d, Payload: e.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

type memTransactor struct{ *memStore }

func (t memTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	tasks := make(map[string]domain.Task, len(t.tasks))
	for k, v := range t.tasks {
		tasks[k] = v
	}
	vectors := make(map[string]ports.IndexEntry, len(t.vectors))
	for k, v := range t.vectors {
		vectors[k] = v
	}
	t.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.mu.Lock()
		t.tasks, t.vectors = tasks, vectors
		t.mu.Unlock()
		return err
	}
	return nil
}

// keywordEmbedder maps text to a one-dimensional vector by its first rune.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return []float32{0}, nil
	}
	return []float32{float32(text[0]) / 255}, nil
}

type memTimeline struct {
	mu     sync.Mutex
	events []domain.TimelineEvent
}

func (m *memTimeline) Create(_ context.Context, event *domain.TimelineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = uint(len(m.events) + 1)
	m.events = append(m.events, *event)
	return nil
}

func (m *memTimeline) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TimelineEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].OwnerID == ownerID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *memTimeline) ListByRequest(_ context.Context, ownerID, requestID string) ([]domain.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TimelineEvent
	for _, e := range m.events {
		if e.OwnerID == ownerID && e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memTimeline) CleanupOld(context.Context, time.Duration) error { return nil }

func (m *memTimeline) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserRepo(users ...domain.User) *memUserRepo {
	r := &memUserRepo{users: map[string]domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID == telegramID {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: map[string]domain.RefreshToken{}}
}

func (r *memTokenRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Token] = *token
	return nil
}

func (r *memTokenRepo) GetByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTokenRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *memTokenRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, k)
		}
	}
	return nil
}

type memTagRepo struct {
	mu   sync.Mutex
	tags map[string]domain.SmartTag
}

func newMemTagRepo() *memTagRepo {
	return &memTagRepo{tags: map[string]domain.SmartTag{}}
}

func (r *memTagRepo) Create(_ context.Context, tag *domain.SmartTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[tag.ID] = *tag
	return nil
}

func (r *memTagRepo) list(match func(domain.SmartTag) bool) []domain.SmartTag {
	out := []domain.SmartTag{}
	for _, t := range r.tags {
		if match(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *memTagRepo) ListByTask(_ context.Context, ownerID, taskID string) ([]domain.SmartTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(t domain.SmartTag) bool { return t.OwnerID == ownerID && t.TaskID == taskID }), nil
}

func (r *memTagRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.SmartTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(t domain.SmartTag) bool { return t.OwnerID == ownerID }), nil
}

func (r *memTagRepo) Delete(_ context.Context, ownerID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[id]
	if !ok || t.OwnerID != ownerID {
		return false, nil
	}
	delete(r.tags, id)
	return true, nil
}

func (r *memTagRepo) DeleteByTask(_ context.Context, ownerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tags {
		if t.OwnerID == ownerID && t.TaskID == taskID {
			delete(r.tags, id)
		}
	}
	return nil
}

type memSettingRepo struct {
	mu       sync.Mutex
	settings map[string]domain.UserSetting
}

func newMemSettingRepo() *memSettingRepo {
	return &memSettingRepo{settings: map[string]domain.UserSetting{}}
}

func (r *memSettingRepo) Get(_ context.Context, ownerID, key string) (*domain.UserSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[ownerID+"/"+key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memSettingRepo) Set(_ context.Context, setting *domain.UserSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[setting.OwnerID+"/"+setting.Key] = *setting
	return nil
}

func (r *memSettingRepo) List(_ context.Context, ownerID string) ([]domain.UserSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UserSetting
	for _, s := range r.settings {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSettingRepo) Delete(_ context.Context, ownerID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settings, ownerID+"/"+key)
	return nil
}
