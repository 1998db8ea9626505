package suggestions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func mustTenantID(t *testing.T, value string) TenantID {
	t.Helper()
	id, err := NewTenantID(value)
	if err != nil {
		t.Fatalf("unexpected tenant id error: %v", err)
	}
	return id
}

func mustAuthorID(t *testing.T, value string) AuthorID {
	t.Helper()
	id, err := NewAuthorID(value)
	if err != nil {
		t.Fatalf("unexpected author id error: %v", err)
	}
	return id
}

func mustSuggestionID(t *testing.T, value int64) SuggestionID {
	t.Helper()
	id, err := NewSuggestionID(value)
	if err != nil {
		t.Fatalf("unexpected suggestion id error: %v", err)
	}
	return id
}

func recordKey(tenant string, id int64) string {
	return fmt.Sprintf("%s/%d", tenant, id)
}

// memoryRepository is an in-memory Repository with the same conditional
// update semantics the storage layer provides.
type memoryRepository struct {
	mu       sync.Mutex
	settings map[string]TenantSettings
	counters map[string]int64
	records  map[string]*Suggestion
	events   []SuggestionEvent

	countErr  error
	insertErr error

	// Interleaving hooks, invoked before the mutex is taken so they may call
	// back into the repository.
	beforeUpdateContent func()
	beforeMarkReplied   func()
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		settings: make(map[string]TenantSettings),
		counters: make(map[string]int64),
		records:  make(map[string]*Suggestion),
	}
}

func (r *memoryRepository) putSettings(settings TenantSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settings.TenantID] = settings
}

func (r *memoryRepository) Settings(_ context.Context, tenant TenantID) (TenantSettings, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	settings, ok := r.settings[tenant.String()]
	return settings, ok, nil
}

func (r *memoryRepository) SequenceCount(_ context.Context, tenant TenantID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.counters[tenant.String()], nil
}

func (r *memoryRepository) Insert(_ context.Context, suggestion *Suggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	key := recordKey(suggestion.TenantID, suggestion.ID)
	if _, exists := r.records[key]; exists {
		return fmt.Errorf("duplicate record %s", key)
	}
	stored := *suggestion
	r.records[key] = &stored
	// Counter and record commit together, as in the real store.
	r.counters[suggestion.TenantID]++
	return nil
}

func (r *memoryRepository) Find(_ context.Context, tenant TenantID, id SuggestionID) (*Suggestion, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[recordKey(tenant.String(), id.Int64())]
	if !ok {
		return nil, false, nil
	}
	snapshot := *stored
	return &snapshot, true, nil
}

func (r *memoryRepository) UpdateContent(_ context.Context, tenant TenantID, id SuggestionID, content string) (bool, error) {
	if r.beforeUpdateContent != nil {
		r.beforeUpdateContent()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[recordKey(tenant.String(), id.Int64())]
	if !ok || stored.RepliedAtSeconds != nil || stored.ArchivedAtSeconds != nil {
		return false, nil
	}
	stored.Content = content
	return true, nil
}

func (r *memoryRepository) MarkReplied(_ context.Context, tenant TenantID, id SuggestionID, repliedAt time.Time, action ResolveAction, response string) (bool, error) {
	if r.beforeMarkReplied != nil {
		r.beforeMarkReplied()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[recordKey(tenant.String(), id.Int64())]
	if !ok || stored.RepliedAtSeconds != nil || stored.ArchivedAtSeconds != nil {
		return false, nil
	}
	seconds := repliedAt.Unix()
	stored.RepliedAtSeconds = &seconds
	stored.RepliedAction = action.String()
	stored.RepliedResponse = response
	return true, nil
}

func (r *memoryRepository) MarkArchived(_ context.Context, tenant TenantID, id SuggestionID, archivedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[recordKey(tenant.String(), id.Int64())]
	if !ok || stored.ArchivedAtSeconds != nil {
		return false, nil
	}
	seconds := archivedAt.Unix()
	stored.ArchivedAtSeconds = &seconds
	return true, nil
}

func (r *memoryRepository) RecordEvent(_ context.Context, event *SuggestionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *memoryRepository) record(t *testing.T, tenant string, id int64) Suggestion {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[recordKey(tenant, id)]
	if !ok {
		t.Fatalf("record %s/%d not persisted", tenant, id)
	}
	return *stored
}

func (r *memoryRepository) recordCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// memoryMessageStore is an in-memory MessageStore. Deleting a message
// simulates external removal of the rendered artifact.
type memoryMessageStore struct {
	mu       sync.Mutex
	nextID   int
	messages map[ArtifactRef]RenderedContent

	createErr   error
	reactErr    error
	threadErr   error
	createDelay time.Duration
	fetchCalls  int
	reactions   []string
	threads     []string
}

func newMemoryMessageStore() *memoryMessageStore {
	return &memoryMessageStore{messages: make(map[ArtifactRef]RenderedContent)}
}

func (m *memoryMessageStore) Create(_ context.Context, channelID string, content RenderedContent) (ArtifactRef, error) {
	if m.createDelay > 0 {
		time.Sleep(m.createDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return ArtifactRef{}, m.createErr
	}
	m.nextID++
	ref := ArtifactRef{ChannelID: channelID, MessageID: fmt.Sprintf("message-%d", m.nextID)}
	m.messages[ref] = append(RenderedContent(nil), content...)
	return ref, nil
}

func (m *memoryMessageStore) Update(_ context.Context, ref ArtifactRef, content RenderedContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[ref]; !ok {
		return ErrArtifactNotFound
	}
	m.messages[ref] = append(RenderedContent(nil), content...)
	return nil
}

func (m *memoryMessageStore) Fetch(_ context.Context, ref ArtifactRef) (RenderedContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	content, ok := m.messages[ref]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return append(RenderedContent(nil), content...), nil
}

func (m *memoryMessageStore) React(_ context.Context, _ ArtifactRef, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reactErr != nil {
		return m.reactErr
	}
	m.reactions = append(m.reactions, emoji)
	return nil
}

func (m *memoryMessageStore) StartThread(_ context.Context, _ ArtifactRef, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threadErr != nil {
		return m.threadErr
	}
	m.threads = append(m.threads, name)
	return nil
}

func (m *memoryMessageStore) delete(ref ArtifactRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, ref)
}

func (m *memoryMessageStore) content(t *testing.T, ref ArtifactRef) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.messages[ref]
	if !ok {
		t.Fatalf("message %v not stored", ref)
	}
	return string(content)
}

// stubRenderer produces deterministic opaque payloads.
type stubRenderer struct{}

func (stubRenderer) RenderNew(_ TenantSettings, data MessageData) (RenderedContent, error) {
	return RenderedContent("new:" + data.Content), nil
}

func (stubRenderer) RenderEdit(_ TenantSettings, _ RenderedContent, data MessageData) (RenderedContent, error) {
	return RenderedContent("edit:" + data.Content), nil
}

func (stubRenderer) RenderResolution(_ TenantSettings, existing RenderedContent, data ResolutionData) (RenderedContent, error) {
	return RenderedContent(string(existing) + "|" + data.Action.String()), nil
}

func (stubRenderer) RenderArchived(existing RenderedContent) (RenderedContent, error) {
	return RenderedContent(string(existing) + "|archived"), nil
}

type sequentialIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("event-%d", p.next), nil
}

type engineFixture struct {
	service *Service
	repo    *memoryRepository
	store   *memoryMessageStore
}

func newEngineFixture(t *testing.T) engineFixture {
	t.Helper()
	repo := newMemoryRepository()
	store := newMemoryMessageStore()
	service, err := NewService(ServiceConfig{
		Repository: repo,
		Messages:   store,
		Renderer:   stubRenderer{},
		IDProvider: &sequentialIDProvider{},
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return engineFixture{service: service, repo: repo, store: store}
}

func (f engineFixture) configureTenant(t *testing.T, tenant string) {
	t.Helper()
	f.repo.putSettings(TenantSettings{
		TenantID:  tenant,
		ChannelID: "channel-" + tenant,
		UseEmbed:  true,
		Buttons:   true,
	})
}

func (f engineFixture) createSuggestion(t *testing.T, tenant, author, content string) Suggestion {
	t.Helper()
	result, err := f.service.Create(context.Background(), CreateRequest{
		TenantID: mustTenantID(t, tenant),
		AuthorID: mustAuthorID(t, author),
		Content:  content,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return result.Suggestion
}
