package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("ngo-chat-messages")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set("ngo-chat-messages", []byte(`[{"role":"assistant"}]`)))
			got, err := s.Get("ngo-chat-messages")
			require.NoError(t, err)
			assert.Equal(t, `[{"role":"assistant"}]`, string(got))

			require.NoError(t, s.Set("ngo-chat-messages", []byte(`[]`)))
			got, err = s.Get("ngo-chat-messages")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))

			require.NoError(t, s.Delete("ngo-chat-messages"))
			_, err = s.Get("ngo-chat-messages")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.Delete("never-set"))
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	m := NewMemoryStore()
	v := []byte("abc")
	require.NoError(t, m.Set("k", v))
	v[0] = 'x'

	got, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'

	again, _ := m.Get("k")
	assert.Equal(t, "abc", string(again))
}

func TestFileStore_EscapesKeys(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, f.Set("../escape", []byte("x")))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "..%2Fescape.json", entries[0].Name())
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("ngo-chat-padnotes", []byte(`{"needs":"x"}`)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get("ngo-chat-padnotes")
	require.NoError(t, err)
	assert.Equal(t, `{"needs":"x"}`, string(got))
}
