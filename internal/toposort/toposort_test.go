package toposort

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond: a <- b, a <- c, b <- d, c <- d (d is the root).
func diamond() DepsFunc[string] {
	g := map[string][]string{
		"d": {"b", "c"},
		"b": {"a"},
		"c": {"a"},
		"a": nil,
	}
	return func(n string) []string { return g[n] }
}

func assertValidOrder(t *testing.T, order []string, deps DepsFunc[string]) {
	t.Helper()
	for i, n := range order {
		for _, d := range deps(n) {
			j := slices.Index(order, d)
			if j < 0 {
				continue
			}
			assert.Less(t, j, i, "%s must come before %s", d, n)
		}
	}
}

func TestSort(t *testing.T) {
	deps := diamond()
	order, err := Sort("d", deps)
	require.NoError(t, err)
	assert.Len(t, order, 4)
	assert.Equal(t, "d", order[len(order)-1])
	assertValidOrder(t, order, deps)
}

func TestSort_Cycle(t *testing.T) {
	g := map[string][]string{
		"root": {"x"},
		"x":    {"y"},
		"y":    {"z"},
		"z":    {"x"},
	}
	_, err := Sort("root", func(n string) []string { return g[n] })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestSort_Leaves(t *testing.T) {
	deps := diamond()
	order, err := Sort("d", deps, "b", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, order)

	order, err = Sort("d", deps, "a")
	require.NoError(t, err)
	assert.Len(t, order, 3)
	assert.NotContains(t, order, "a")
	assertValidOrder(t, order, deps)
}

func TestCheckIsValidLeafSet(t *testing.T) {
	deps := diamond()
	require.NoError(t, CheckIsValidLeafSet("d", deps, []string{"a"}))
	require.NoError(t, CheckIsValidLeafSet("d", deps, []string{"b", "c"}))

	// "c" alone leaves the path d -> b -> a uncut.
	err := CheckIsValidLeafSet("d", deps, []string{"c"})
	require.Error(t, err)

	// Not a descendant.
	err = CheckIsValidLeafSet("b", deps, []string{"c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a descendant")

	_, err = Sort("d", deps, "c")
	require.Error(t, err)
}

func TestSort_DeepChain(t *testing.T) {
	const n = 200000
	deps := func(i int) []int {
		if i == 0 {
			return nil
		}
		return []int{i - 1}
	}
	order, err := Sort(n-1, deps)
	require.NoError(t, err)
	require.Len(t, order, n)
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d", i, v)
		}
	}
}
