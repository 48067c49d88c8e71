package engine

import (
	"fmt"
)

// The switch construct keeps exactly one nested graph alive: the case
// selected by its key input. A key tick to a different case (or any key
// tick, with reload_always) tears the active graph down and builds the
// newly selected one; the construct's output is invalidated across the
// swap so the old case's value is never observed as current.

func evalSwitch(c *Context) error {
	n := c.Node()
	state := c.State()
	child, _ := state["child"].(*Graph)
	current, _ := state["case"].(string)

	keyIn := c.Input("key")
	if keyIn != nil && keyIn.Modified() {
		k := fmt.Sprintf("%v", keyIn.Scalar())
		if k != current || child == nil || c.ConfigBool("reload_always", false) {
			tmpl, ok := n.spec.Cases[k]
			if !ok {
				tmpl, ok = n.spec.Cases["default"]
			}
			if !ok {
				return fmt.Errorf("switch node %q: no case for key %q", n.Name(), k)
			}
			disposeChild(n, child)
			state["child"] = nil
			if c.Output() != nil {
				c.Output().Invalidate()
			}
			fresh, err := spawnChild(n, tmpl, k, bridgeResolver(n, k))
			if err != nil {
				return err
			}
			child = fresh
			state["child"] = child
			state["case"] = k
		}
	}

	if child == nil {
		return nil
	}
	ran, err := runChildCycle(n, child)
	if err != nil {
		return err
	}
	if ran {
		if res := childResult(child); res != nil && res.Modified() {
			return c.Output().Apply(res.Delta())
		}
	}
	return nil
}

func stopSwitch(c *Context) error {
	if child, _ := c.State()["child"].(*Graph); child != nil {
		return child.Stop()
	}
	return nil
}

func disposeSwitch(c *Context) error {
	if child, _ := c.State()["child"].(*Graph); child != nil {
		disposeChild(c.Node(), child)
		c.State()["child"] = nil
	}
	return nil
}
