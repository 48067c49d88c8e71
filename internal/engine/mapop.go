package engine

import (
	"fmt"

	"github.com/roach88/tsflow/internal/ts"
)

// The map construct instantiates its nested template once per key of a
// dict input, tears instances down as keys disappear, and mirrors each
// instance's result into the matching key of its own dict output.

func mapChildren(c *Context) map[ts.Key]*Graph {
	state := c.State()
	children, _ := state["children"].(map[ts.Key]*Graph)
	if children == nil {
		children = make(map[ts.Key]*Graph)
		state["children"] = children
	}
	return children
}

func evalMap(c *Context) error {
	n := c.Node()
	tmpl := n.spec.Nested
	if tmpl == nil {
		return fmt.Errorf("map node %q has no nested template", n.Name())
	}
	children := mapChildren(c)
	in := c.Input("in")

	spawn := func(k ts.Key) error {
		if children[k] != nil {
			return nil
		}
		child, err := spawnChild(n, tmpl, k, bridgeResolver(n, k))
		if err != nil {
			return err
		}
		children[k] = child
		return nil
	}

	switch {
	case in != nil && in.Modified():
		delta, ok := in.Delta().(ts.DictDelta)
		if !ok {
			return fmt.Errorf("map node %q: input is not a dict", n.Name())
		}
		for _, k := range delta.Removed() {
			if child := children[k]; child != nil {
				disposeChild(n, child)
				delete(children, k)
			}
			c.Output().DictRemove(k)
		}
		for _, k := range delta.ModifiedKeys() {
			if err := spawn(k); err != nil {
				return err
			}
		}
	case in != nil && in.Valid() && len(children) == 0:
		// First activation after the dict already populated.
		if peer := in.PeerOutput(); peer != nil {
			keys := peer.DictKeys()
			ts.SortKeys(keys)
			for _, k := range keys {
				if err := spawn(k); err != nil {
					return err
				}
			}
		}
	}

	keys := make([]ts.Key, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	ts.SortKeys(keys)
	for _, k := range keys {
		child := children[k]
		ran, err := runChildCycle(n, child)
		if err != nil {
			return err
		}
		if !ran {
			continue
		}
		if res := childResult(child); res != nil && res.Modified() {
			entry, err := c.Output().DictGetOrCreate(k)
			if err != nil {
				return err
			}
			if err := entry.Apply(res.Delta()); err != nil {
				return err
			}
		}
	}
	return nil
}

func stopMap(c *Context) error {
	for _, child := range mapChildren(c) {
		if err := child.Stop(); err != nil {
			return err
		}
	}
	return nil
}

func disposeMap(c *Context) error {
	children := mapChildren(c)
	for k, child := range children {
		disposeChild(c.Node(), child)
		delete(children, k)
	}
	return nil
}
