package attributes

import (
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/asaidimu/go-odm/core/schema"
)

// Changes is the minimal update that turns one document into another. Set
// keys and Unset entries are dotted paths; list elements use their index.
type Changes struct {
	Set   schema.Document
	Unset []string
}

// Empty reports whether there is nothing to write.
func (c Changes) Empty() bool {
	return len(c.Set) == 0 && len(c.Unset) == 0
}

// UpdateDocument renders the changes as a {$set, $unset} update.
func (c Changes) UpdateDocument() schema.Document {
	update := schema.Document{}
	if len(c.Set) > 0 {
		update["$set"] = map[string]any(c.Set)
	}
	if len(c.Unset) > 0 {
		unset := make(map[string]any, len(c.Unset))
		for _, path := range c.Unset {
			unset[path] = ""
		}
		update["$unset"] = unset
	}
	return update
}

// Diff computes the changes from original to current. Nested maps are
// compared key by key and lists index by index; a list that shrinks, or a
// value whose shape changes, is replaced whole.
func Diff(original, current schema.Document) Changes {
	ch := Changes{Set: schema.Document{}}
	diffMaps("", original, current, &ch)
	slices.Sort(ch.Unset)
	return ch
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func diffMaps(prefix string, a, b map[string]any, ch *Changes) {
	for _, key := range slices.Sorted(maps.Keys(b)) {
		path := join(prefix, key)
		av, ok := a[key]
		if !ok {
			ch.Set[path] = b[key]
			continue
		}
		diffValues(path, av, b[key], ch)
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			ch.Unset = append(ch.Unset, join(prefix, key))
		}
	}
}

func diffValues(path string, av, bv any, ch *Changes) {
	am, aIsMap := schema.AsMap(av)
	bm, bIsMap := schema.AsMap(bv)
	if aIsMap && bIsMap {
		if len(bm) == 0 && len(am) > 0 {
			ch.Set[path] = bv
			return
		}
		diffMaps(path, am, bm, ch)
		return
	}

	al, aIsList := av.([]any)
	bl, bIsList := bv.([]any)
	if aIsList && bIsList {
		if len(bl) < len(al) {
			ch.Set[path] = bv
			return
		}
		for i, item := range bl {
			itemPath := path + "." + strconv.Itoa(i)
			if i >= len(al) {
				ch.Set[itemPath] = item
				continue
			}
			diffValues(itemPath, al[i], item, ch)
		}
		return
	}

	if !sameValue(av, bv) {
		ch.Set[path] = bv
	}
}

// sameValue compares leaves. Numbers compare by value, so an int64 loaded
// from a store equals the int an application assigns.
func sameValue(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return schema.Equal(a, b)
}
