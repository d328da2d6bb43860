package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thereayou/roomcoord/internal/models"
)

type fakeDirectory struct {
	members map[uuid.UUID][]string
	users   []string
	tokens  []models.PushToken
}

func (f *fakeDirectory) ChannelMembers(id uuid.UUID) ([]string, error) { return f.members[id], nil }
func (f *fakeDirectory) ListUsernames() ([]string, error)              { return f.users, nil }
func (f *fakeDirectory) PushTokens(names []string) ([]models.PushToken, error) {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []models.PushToken
	for _, t := range f.tokens {
		if want[t.Username] {
			out = append(out, t)
		}
	}
	return out, nil
}

type sent struct {
	token, title, body string
	data               map[string]string
}

type fakeProvider struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]bool
}

func (p *fakeProvider) Send(_ context.Context, token, title, body string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[token] {
		return errors.New("bad token")
	}
	p.sent = append(p.sent, sent{token, title, body, data})
	return nil
}

func (p *fakeProvider) tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, s := range p.sent {
		out = append(out, s.token)
	}
	sort.Strings(out)
	return out
}

func TestExtractMentions(t *testing.T) {
	assert.Equal(t, []string{"B"}, ExtractMentions("hi @B"))
	assert.Equal(t, []string{"bob", "carol.k"}, ExtractMentions("@bob and @carol.k. also @bob"))
	assert.Empty(t, ExtractMentions("mail me at a@b.com"))
	assert.Empty(t, ExtractMentions("@everyone look"))
	assert.True(t, MentionsEveryone("hey @everyone!"))
	assert.False(t, MentionsEveryone("hey everyone"))
}

func TestRecipientsPublicMentions(t *testing.T) {
	d := NewDispatcher(&fakeDirectory{users: []string{"a", "b", "c"}}, &fakeProvider{}, 2, zap.NewNop())
	ch := &models.Channel{ID: uuid.New(), Name: "general", Visibility: models.VisibilityPublic}

	got, err := d.Recipients(Notification{Channel: ch, Message: &models.Message{Username: "a", Mentions: []string{"b", "a"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got)

	got, err = d.Recipients(Notification{Channel: ch, Message: &models.Message{Username: "a"}, MentionsAll: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestRecipientsDirectChannel(t *testing.T) {
	ch := &models.Channel{ID: uuid.New(), Visibility: models.VisibilityDirect}
	dir := &fakeDirectory{members: map[uuid.UUID][]string{ch.ID: {"a", "b"}}}
	d := NewDispatcher(dir, &fakeProvider{}, 2, zap.NewNop())

	got, err := d.Recipients(Notification{Channel: ch, Message: &models.Message{Username: "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got)
}

func TestScheduleContinuesAfterTokenFailure(t *testing.T) {
	dir := &fakeDirectory{tokens: []models.PushToken{
		{Username: "B", Token: "bad"},
		{Username: "B", Token: "good-1"},
		{Username: "C", Token: "good-2"},
		{Username: "D", Token: "not-mentioned"},
	}}
	provider := &fakeProvider{fail: map[string]bool{"bad": true}}
	d := NewDispatcher(dir, provider, 1, zap.NewNop())

	ch := &models.Channel{ID: uuid.New(), Name: "general", Visibility: models.VisibilityPublic}
	msg := &models.Message{ID: uuid.New(), Username: "A", Content: "hi @B @C", Mentions: []string{"B", "C"}}
	d.Schedule(Notification{RoomID: "lobby", Channel: ch, Message: msg, AuthorName: "Alice"})
	d.Close()

	assert.Equal(t, []string{"good-1", "good-2"}, provider.tokens())
	first := provider.sent[0]
	assert.Equal(t, "Alice in #general", first.title)
	assert.Equal(t, "hi @B @C", first.body)
	assert.Equal(t, "lobby", first.data["room_id"])
	assert.Equal(t, ch.ID.String(), first.data["channel_id"])
}

func TestScheduleAfterCloseIsDropped(t *testing.T) {
	dir := &fakeDirectory{tokens: []models.PushToken{{Username: "B", Token: "t-1"}}}
	provider := &fakeProvider{}
	d := NewDispatcher(dir, provider, 1, zap.NewNop())
	d.Close()

	ch := &models.Channel{ID: uuid.New(), Name: "general", Visibility: models.VisibilityPublic}
	d.Schedule(Notification{Channel: ch, Message: &models.Message{ID: uuid.New(), Username: "A", Mentions: []string{"B"}}})
	d.Close()

	assert.Empty(t, provider.tokens())
}

func TestCloseWaitsForConcurrentSchedules(t *testing.T) {
	dir := &fakeDirectory{tokens: []models.PushToken{{Username: "B", Token: "t-1"}}}
	provider := &fakeProvider{}
	d := NewDispatcher(dir, provider, 1, zap.NewNop())
	ch := &models.Channel{ID: uuid.New(), Name: "general", Visibility: models.VisibilityPublic}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Schedule(Notification{Channel: ch, Message: &models.Message{ID: uuid.New(), Username: "A", Mentions: []string{"B"}}})
		}()
	}
	d.Close()
	accepted := len(provider.tokens())
	wg.Wait()

	// все, что принято до Close, доставлено до его возврата; остальное отброшено
	assert.Equal(t, accepted, len(provider.tokens()))
	assert.LessOrEqual(t, accepted, 8)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview(" short ", 10))
	assert.Equal(t, "привет…", Preview("приветствую", 6))
}

func TestExpoProvider(t *testing.T) {
	var got expoMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.To == "ExponentPushToken[bad]" {
			_, _ = w.Write([]byte(`{"data":{"status":"error","message":"DeviceNotRegistered"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"status":"ok","id":"1"}}`))
	}))
	defer srv.Close()

	p := NewExpoProvider(srv.URL)
	require.NoError(t, p.Send(context.Background(), "ExponentPushToken[ok]", "t", "b", map[string]string{"room_id": "r"}))
	assert.Equal(t, "r", got.Data["room_id"])

	err := p.Send(context.Background(), "ExponentPushToken[bad]", "t", "b", nil)
	assert.ErrorContains(t, err, "DeviceNotRegistered")
}
