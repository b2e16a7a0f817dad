package snapshot

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func TestWriterRead(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter[record](&buf)
	require.NoError(t, w.Append(record{ID: "a", URL: "u1"}))
	require.NoError(t, w.Append(record{ID: "b"}))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	var got []record
	require.NoError(t, Read(&buf, func(r record) error {
		got = append(got, r)
		return nil
	}))
	assert.Equal(t, []record{{ID: "a", URL: "u1"}, {ID: "b"}}, got)
}

func TestRead_StopsOnCallbackError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter[record](&buf)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, w.Append(record{ID: id}))
	}
	require.NoError(t, w.Close())

	stop := errors.New("stop")
	n := 0
	err := Read(&buf, func(record) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func TestFile_ConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.jsonl.gz")
	w, err := Create[record](path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Append(record{ID: string(rune('a' + i))}))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	seen := map[string]bool{}
	require.NoError(t, ReadFile(path, func(r record) error {
		seen[r.ID] = true
		return nil
	}))
	assert.Len(t, seen, 20)
}

func TestRead_NotGzip(t *testing.T) {
	err := Read(bytes.NewReader([]byte("nope")), func(record) error { return nil })
	assert.Error(t, err)
}
