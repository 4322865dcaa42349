package node

import (
	"github.com/imdario/mergo"
	"github.com/mosaicnetworks/tabsync/src/store"
)

// ShallowMerge overwrites the top-level fields of local with those of remote.
// It is the default merge.
func ShallowMerge(local, remote store.State) store.State {
	out := make(store.State, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range remote {
		out[k] = v
	}
	return out
}

// DeepMerge merges nested maps of remote into local, field by field, with
// remote values winning. local is left untouched.
func DeepMerge(local, remote store.State) store.State {
	dst := store.State(deepCopyMap(local))
	if err := mergo.Merge(&dst, remote, mergo.WithOverride); err != nil {
		return ShallowMerge(local, remote)
	}
	return dst
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case store.State:
		return store.State(deepCopyMap(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
