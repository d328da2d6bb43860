package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/roomcoord/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	d := &Database{}
	require.NoError(t, d.Use(gdb))
	return d
}

func seedChannel(t *testing.T, d *Database) *models.Channel {
	t.Helper()
	ch := &models.Channel{RoomID: "lobby", Name: "general", Kind: models.ChannelKindText, Visibility: models.VisibilityPublic}
	require.NoError(t, d.CreateChannel(ch))
	return ch
}

// seedMessages создает n сообщений; каждые два подряд делят одну метку времени.
func seedMessages(t *testing.T, d *Database, channelID uuid.UUID, n int) []models.Message {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		m := models.Message{
			ChannelID: channelID,
			Username:  "alice",
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		}
		require.NoError(t, d.SaveMessage(&m))
		out = append(out, m)
	}
	return out
}

func ids(messages []models.Message) []uuid.UUID {
	out := make([]uuid.UUID, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestOffsetPagesReproduceHistory(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	seedMessages(t, d, ch.ID, 23)

	var all []models.Message
	offset := 0
	for {
		page, err := d.GetMessagesByOffset(ch.ID, offset, 5)
		require.NoError(t, err)
		all = append(page.Messages, all...)
		offset += 5
		if !page.HasMoreOlder {
			break
		}
	}

	require.Len(t, all, 23)
	seen := map[uuid.UUID]bool{}
	for i, m := range all {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(all[i-1].CreatedAt))
		}
	}
}

func TestBeforeCursorPagesReproduceHistory(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	seedMessages(t, d, ch.ID, 17)

	first, err := d.GetMessagesByOffset(ch.ID, 0, 4)
	require.NoError(t, err)
	all := first.Messages
	more := first.HasMoreOlder

	for more {
		page, err := d.GetMessagesBefore(ch.ID, CursorOf(&all[0]), 4)
		require.NoError(t, err)
		assert.True(t, page.HasMoreNewer)
		all = append(page.Messages, all...)
		more = page.HasMoreOlder
	}

	total, err := d.CountChannelMessages(ch.ID)
	require.NoError(t, err)
	require.Len(t, all, int(total))

	seen := map[uuid.UUID]bool{}
	for _, id := range ids(all) {
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestAfterCursor(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	seedMessages(t, d, ch.ID, 10)

	ordered, err := d.GetMessagesByOffset(ch.ID, 0, 10)
	require.NoError(t, err)
	msgs := ordered.Messages

	page, err := d.GetMessagesAfter(ch.ID, CursorOf(&msgs[3]), 3)
	require.NoError(t, err)
	assert.Equal(t, ids(msgs[4:7]), ids(page.Messages))
	assert.True(t, page.HasMoreOlder)
	assert.True(t, page.HasMoreNewer)

	tail, err := d.GetMessagesAfter(ch.ID, CursorOf(&msgs[7]), 5)
	require.NoError(t, err)
	assert.Equal(t, ids(msgs[8:]), ids(tail.Messages))
	assert.False(t, tail.HasMoreNewer)
}

func TestTimestampOnlyCursor(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	msgs := seedMessages(t, d, ch.ID, 6)

	page, err := d.GetMessagesBefore(ch.ID, Cursor{CreatedAt: msgs[4].CreatedAt}, 10)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 4)
	assert.False(t, page.HasMoreOlder)
	assert.True(t, page.HasMoreNewer)
}

func TestAroundTarget(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	msgs := seedMessages(t, d, ch.ID, 20)

	all, err := d.GetMessagesByOffset(ch.ID, 0, 20)
	require.NoError(t, err)
	target := all.Messages[10]

	page, err := d.GetMessagesAround(ch.ID, target.ID, 3)
	require.NoError(t, err)
	require.Len(t, page.Messages, 7)
	assert.Equal(t, target.ID, page.Messages[3].ID)
	assert.Equal(t, ids(all.Messages[7:14]), ids(page.Messages))
	assert.True(t, page.HasMoreOlder)
	assert.True(t, page.HasMoreNewer)

	edge, err := d.GetMessagesAround(ch.ID, all.Messages[0].ID, 3)
	require.NoError(t, err)
	assert.Len(t, edge.Messages, 4)
	assert.False(t, edge.HasMoreOlder)

	_, err = d.GetMessagesAround(uuid.New(), msgs[0].ID, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateContentKeepsSidecars(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)

	m := models.Message{ChannelID: ch.ID, Username: "alice", Content: "with file", CreatedAt: time.Now().UTC()}
	m.SetSidecars(models.Sidecars{File: &models.FileSidecar{Name: "a.txt", Type: "text/plain", Size: 3, Key: "1-a.txt"}})
	require.NoError(t, d.SaveMessage(&m))

	require.NoError(t, d.UpdateMessageContent(m.ID, "edited", time.Now().UTC()))

	got, err := d.GetMessage(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
	assert.True(t, got.Edited)
	require.NotNil(t, got.EditedAt)
	assert.Equal(t, m.Sidecars(), got.Sidecars())
}

func TestDeleteMessageCascadesReactions(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	msgs := seedMessages(t, d, ch.ID, 1)

	_, err := d.ToggleReaction(msgs[0].ID, "bob", "👍")
	require.NoError(t, err)

	require.NoError(t, d.DeleteMessage(msgs[0].ID))
	reactions, err := d.GetReactions(msgs[0].ID)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	assert.ErrorIs(t, d.DeleteMessage(msgs[0].ID), ErrNotFound)
}

func TestToggleReactionTwiceRestoresState(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	msgs := seedMessages(t, d, ch.ID, 1)
	id := msgs[0].ID

	_, err := d.ToggleReaction(id, "carol", "🎉")
	require.NoError(t, err)
	before, err := d.GetReactions(id)
	require.NoError(t, err)

	added, err := d.ToggleReaction(id, "bob", "👍")
	require.NoError(t, err)
	assert.True(t, added)
	removed, err := d.ToggleReaction(id, "bob", "👍")
	require.NoError(t, err)
	assert.False(t, removed)

	after, err := d.GetReactions(id)
	require.NoError(t, err)
	assert.Equal(t, models.GroupReactions(before), models.GroupReactions(after))
}

func TestReactionsForMessagesBatch(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	msgs := seedMessages(t, d, ch.ID, 3)

	_, _ = d.ToggleReaction(msgs[0].ID, "a", "👍")
	_, _ = d.ToggleReaction(msgs[0].ID, "b", "👍")
	_, _ = d.ToggleReaction(msgs[2].ID, "a", "❤️")

	byID, err := d.GetReactionsForMessages(ids(msgs))
	require.NoError(t, err)
	assert.Len(t, byID[msgs[0].ID], 2)
	assert.Empty(t, byID[msgs[1].ID])
	assert.Len(t, byID[msgs[2].ID], 1)
}

func TestMarkReadUpserts(t *testing.T) {
	d := newTestDB(t)
	ch := seedChannel(t, d)
	msgs := seedMessages(t, d, ch.ID, 2)

	none, err := d.GetLastRead("alice", ch.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, d.MarkRead("alice", ch.ID, msgs[0].ID))
	require.NoError(t, d.MarkRead("alice", ch.ID, msgs[1].ID))

	got, err := d.GetLastRead("alice", ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msgs[1].ID, *got)
}

func TestChannelMembershipAndProfiles(t *testing.T) {
	d := newTestDB(t)
	dm := &models.Channel{RoomID: "lobby", Name: "dm", Kind: models.ChannelKindText, Visibility: models.VisibilityDirect}
	require.NoError(t, d.CreateChannel(dm))
	require.NoError(t, d.AddChannelMember(dm.ID, "alice"))
	require.NoError(t, d.AddChannelMember(dm.ID, "bob"))

	got, err := d.GetRoomChannel("lobby", dm.ID)
	require.NoError(t, err)
	assert.True(t, got.CanAttach("bob"))
	assert.False(t, got.CanAttach("mallory"))

	_, err = d.GetRoomChannel("other", dm.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	members, err := d.ChannelMembers(dm.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	require.NoError(t, d.SaveUser(&models.User{Username: "alice", DisplayName: "Alice A."}))
	p, err := d.GetProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", p.Name())

	anon, err := d.GetProfile("ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", anon.Name())
}

func TestPushTokensByUsername(t *testing.T) {
	d := newTestDB(t)
	require.NoError(t, d.SavePushToken(&models.PushToken{Username: "bob", Token: "t1", Platform: "ios"}))
	require.NoError(t, d.SavePushToken(&models.PushToken{Username: "bob", Token: "t2", Platform: "android"}))
	require.NoError(t, d.SavePushToken(&models.PushToken{Username: "carol", Token: "t3", Platform: "ios"}))

	tokens, err := d.PushTokens([]string{"bob"})
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	empty, err := d.PushTokens(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
