package markdown

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lineItems = `# Receipt

Merchant: **Corner Grocer**

| Item | Qty | Price |
|:-----|:---:|------:|
| Milk 1L | 2 | 3.50 |
| *Bread* | 1 | ` + "`2.10`" + ` |
| Eggs |

Total due below.

| Tax | Amount |
| --- | --- |
| GST | 0.34 |
`

func TestParseTables(t *testing.T) {
	tables := ParseTables([]byte(lineItems))
	require.Len(t, tables, 2)

	items := tables[0]
	assert.Equal(t, []string{"Item", "Qty", "Price"}, items.Header)
	assert.Equal(t, []Alignment{AlignLeft, AlignCenter, AlignRight}, items.Align)
	assert.Equal(t, [][]string{
		{"Milk 1L", "2", "3.50"},
		{"Bread", "1", "2.10"},
		{"Eggs", "", ""},
	}, items.Rows)
	assert.Equal(t, 2, items.Column("price"))
	assert.Equal(t, -1, items.Column("sku"))

	tax := tables[1]
	assert.Equal(t, []string{"Tax", "Amount"}, tax.Header)
	assert.Equal(t, []Alignment{AlignNone, AlignNone}, tax.Align)
	assert.Equal(t, [][]string{{"GST", "0.34"}}, tax.Rows)
}

func TestParseTables_None(t *testing.T) {
	assert.Empty(t, ParseTables([]byte("just | a pipe\n\nno delimiter row")))
	assert.Empty(t, ParseTables(nil))
}

func TestParser_Cache(t *testing.T) {
	cache := NewCache(2)
	p := NewParser(cache)

	docs := make([][]byte, 3)
	for i := range docs {
		docs[i] = []byte(fmt.Sprintf("| a |\n|---|\n| %d |\n", i))
	}

	first := p.Parse(docs[0])
	again := p.Parse(docs[0])
	assert.Equal(t, first, again)

	st := cache.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 50.0, st.HitRate(), 0.001)

	p.Parse(docs[1])
	p.Parse(docs[2])
	st = cache.Stats()
	assert.Equal(t, 2, st.Len)
	assert.Equal(t, int64(1), st.Evictions)

	_, ok := cache.Get(Key(docs[0]))
	assert.False(t, ok, "least recently used entry evicted")

	cache.Clear()
	assert.Equal(t, CacheStats{}, cache.Stats())
}

func TestParser_Concurrent(t *testing.T) {
	p := NewParser(NewCache(16))
	src := []byte(strings.Repeat("| k | v |\n|---|---|\n| x | y |\n\n", 4))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, p.Parse(src), 4)
		}()
	}
	wg.Wait()
}
