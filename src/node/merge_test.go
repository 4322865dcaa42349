package node

import (
	"testing"

	"github.com/mosaicnetworks/tabsync/src/store"
	"github.com/stretchr/testify/assert"
)

func TestShallowMerge(t *testing.T) {
	local := store.State{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"b": 1,
	}
	remote := store.State{
		"a": map[string]interface{}{"y": 3},
		"c": "new",
	}

	res := ShallowMerge(local, remote)

	assert.Equal(t, store.State{
		"a": map[string]interface{}{"y": 3},
		"b": 1,
		"c": "new",
	}, res)
	assert.Len(t, local, 2)
}

func TestDeepMerge(t *testing.T) {
	local := store.State{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"b": 1,
	}
	remote := store.State{
		"a": map[string]interface{}{"y": 3, "z": 4},
		"c": "new",
	}

	res := DeepMerge(local, remote)

	assert.Equal(t, store.State{
		"a": map[string]interface{}{"x": 1, "y": 3, "z": 4},
		"b": 1,
		"c": "new",
	}, res)

	// local is not modified
	assert.Equal(t, map[string]interface{}{"x": 1, "y": 2}, local["a"])
	_, ok := local["c"]
	assert.False(t, ok)
}

func TestDeepMergeNilLocal(t *testing.T) {
	res := DeepMerge(nil, store.State{"count": 3})
	assert.Equal(t, store.State{"count": 3}, res)
}
