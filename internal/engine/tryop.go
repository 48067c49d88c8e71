package engine

import (
	"fmt"
)

// The try construct isolates a nested graph behind an error boundary. Its
// output is a bundle: "out" mirrors the child's result, "err" ticks the
// captured failure when a child cycle aborts. A failed child is torn down;
// with restart enabled a fresh instance is built on the next activation.

func evalTry(c *Context) error {
	n := c.Node()
	tmpl := n.spec.Nested
	if tmpl == nil {
		return fmt.Errorf("try node %q has no nested template", n.Name())
	}
	state := c.State()
	child, _ := state["child"].(*Graph)
	failed, _ := state["failed"].(bool)

	if child == nil {
		if failed && !c.ConfigBool("restart", false) {
			return nil
		}
		fresh, err := spawnChild(n, tmpl, nil, bridgeResolver(n, nil))
		if err != nil {
			return err
		}
		child = fresh
		state["child"] = child
		state["failed"] = false
	}

	ran, err := runChildCycle(n, child)
	if err != nil {
		disposeChild(n, child)
		state["child"] = nil
		state["failed"] = true
		if errField := c.Output().Field("err"); errField != nil {
			errField.SetScalar(AsNodeError(err))
			return nil
		}
		return err
	}
	if ran {
		if res := childResult(child); res != nil && res.Modified() {
			if outField := c.Output().Field("out"); outField != nil {
				return outField.Apply(res.Delta())
			}
			return c.Output().Apply(res.Delta())
		}
	}
	return nil
}

func stopTry(c *Context) error {
	if child, _ := c.State()["child"].(*Graph); child != nil {
		return child.Stop()
	}
	return nil
}

func disposeTry(c *Context) error {
	if child, _ := c.State()["child"].(*Graph); child != nil {
		disposeChild(c.Node(), child)
		c.State()["child"] = nil
	}
	return nil
}
