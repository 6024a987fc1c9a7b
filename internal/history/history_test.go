package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_InsertAndMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := []Row{
		{CID: "c1", MID: "m1", Content: "Hello", Send: true, CreateTime: base},
		{CID: "c1", MID: "r1", Content: "Hi there", Send: false, CreateTime: base.Add(time.Second)},
		{CID: "c2", MID: "m2", Content: "Other", Send: true, CreateTime: base.Add(2 * time.Second)},
	}
	for _, r := range rows {
		id, err := s.Insert(ctx, r)
		require.NoError(t, err)
		require.Positive(t, id)
	}

	got, err := s.Messages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].MID)
	require.True(t, got[0].Send)
	require.Equal(t, "Hello", got[0].Content)
	require.Equal(t, "r1", got[1].MID)
	require.False(t, got[1].Send)
	require.True(t, got[1].CreateTime.Equal(base.Add(time.Second)))
}

func TestStore_MessagesTieBreakByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, mid := range []string{"a", "b", "c"} {
		_, err := s.Insert(ctx, Row{CID: "c", MID: mid, Content: mid, CreateTime: at})
		require.NoError(t, err)
	}

	got, err := s.Messages(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, []string{got[0].MID, got[1].MID, got[2].MID})
}

func TestStore_Conversations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx, Row{CID: "old", MID: "1", Content: "first question", Send: true, CreateTime: base})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Row{CID: "new", MID: "2", Content: "second", Send: true, CreateTime: base.Add(time.Minute)})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Row{CID: "old", MID: "3", Content: "answer", CreateTime: base.Add(2 * time.Minute)})
	require.NoError(t, err)

	got, err := s.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "old", got[0].CID)
	require.Equal(t, "first question", got[0].Content)
	require.Equal(t, "new", got[1].CID)
}

func TestStore_DeleteConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, cid := range []string{"keep", "drop", "drop"} {
		_, err := s.Insert(ctx, Row{CID: cid, MID: "m", Content: "x"})
		require.NoError(t, err)
	}

	n, err := s.DeleteConversation(ctx, "drop")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := s.Messages(ctx, "drop")
	require.NoError(t, err)
	require.Empty(t, got)

	convs, err := s.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "keep", convs[0].CID)
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), Row{CID: "c", MID: "m", Content: "persisted", Send: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Messages(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "persisted", got[0].Content)
}
