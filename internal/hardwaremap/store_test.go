package hardwaremap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg", DefaultFileName)
	if content != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return New(path, nil)
}

func TestParseSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		"serial123=3",
		"",
		"no separator",
		"=4",
		"/dev/hidraw2 = 2",
		"bad=position",
		"tooBig=100",
		"zero=0",
	}, "\n")

	entries, skipped := Parse(strings.NewReader(input))
	assert.Equal(t, []Entry{
		{UniqueID: "serial123", Position: 3},
		{UniqueID: "/dev/hidraw2", Position: 2},
	}, entries)
	assert.Equal(t, 5, skipped)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	s := newStore(t, "Serial123=3\n")

	pos, ok := s.Lookup("SERIAL123")
	assert.True(t, ok)
	assert.Equal(t, 3, pos)

	_, ok = s.Lookup("other")
	assert.False(t, ok)
}

func TestMissingFileIsEmpty(t *testing.T) {
	s := newStore(t, "")
	assert.Empty(t, s.Entries())
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "reading does not create the file")
}

func TestAssignWritesThrough(t *testing.T) {
	s := newStore(t, "")
	require.NoError(t, s.Assign("zeta", 2))
	require.NoError(t, s.Assign("alpha", 1))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "alpha=1\nzeta=2\n", string(raw))

	reloaded := New(s.Path(), nil)
	pos, ok := reloaded.Lookup("ZETA")
	assert.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestAssignReplacesExistingEntryWithDifferentCase(t *testing.T) {
	s := newStore(t, "serial123=3\n")
	require.NoError(t, s.Assign("SERIAL123", 5))

	assert.Equal(t, []Entry{{UniqueID: "SERIAL123", Position: 5}}, s.Entries())
}

func TestAssignEvictsOtherHolderOfPosition(t *testing.T) {
	s := newStore(t, "old=2\nkeep=3\n")
	require.NoError(t, s.Assign("new", 2))

	assert.Equal(t, []Entry{
		{UniqueID: "new", Position: 2},
		{UniqueID: "keep", Position: 3},
	}, s.Entries())
}

func TestAssignRejectsInvalidPosition(t *testing.T) {
	s := newStore(t, "")
	for _, pos := range []int{0, -1, 100, 250} {
		assert.ErrorIs(t, s.Assign("dev", pos), ErrInvalidPosition)
	}
	assert.Error(t, s.Assign("  ", 1))
	assert.Empty(t, s.Entries())
}

func TestRemove(t *testing.T) {
	s := newStore(t, "a=1\nb=2\n")
	require.NoError(t, s.Remove("A"))
	require.NoError(t, s.Remove("missing"))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "b=2\n", string(raw))
}

func TestHolder(t *testing.T) {
	s := newStore(t, "a=1\n")
	id, ok := s.Holder(1)
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	_, ok = s.Holder(2)
	assert.False(t, ok)
}

func TestResolveAssignsTransientPositions(t *testing.T) {
	s := newStore(t, "serial123=3\n")

	positions := s.Resolve([]string{"/dev/hidraw0", "serial123", "/dev/hidraw5"}, 100)
	assert.Equal(t, []int{100, 3, 101}, positions)

	_, ok := s.Lookup("/dev/hidraw0")
	assert.False(t, ok, "transient positions are not persisted")
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	// 親がファイルなので書き込みは失敗する
	s := New(filepath.Join(blocker, DefaultFileName), nil)
	assert.Error(t, s.Assign("dev", 4))

	pos, ok := s.Lookup("dev")
	assert.True(t, ok)
	assert.Equal(t, 4, pos)
}
