package navigate

// Cursor steps through an ordered id sequence with wraparound. A fresh or
// reset cursor is unset: advancing forward lands on the first id, backward
// on the last.
type Cursor struct {
	ids []int
	pos int
}

// NewCursor returns an unset cursor over ids. The slice is not copied and
// must not be modified by the caller.
func NewCursor(ids []int) *Cursor {
	return &Cursor{ids: ids, pos: -1}
}

// Advance moves one step in dir (positive is forward) and returns the new
// target. It reports false only when the sequence is empty.
func (c *Cursor) Advance(dir int) (int, bool) {
	n := len(c.ids)
	if n == 0 {
		c.pos = -1
		return 0, false
	}
	step := 1
	if dir < 0 {
		step = -1
	}
	if c.pos < 0 {
		if step > 0 {
			c.pos = 0
		} else {
			c.pos = n - 1
		}
	} else {
		c.pos = (c.pos + step + n) % n
	}
	return c.ids[c.pos], true
}

// Current returns the target the cursor rests on.
func (c *Cursor) Current() (int, bool) {
	if c.pos < 0 || c.pos >= len(c.ids) {
		return 0, false
	}
	return c.ids[c.pos], true
}

// Position returns the zero-based position, or -1 when unset.
func (c *Cursor) Position() int { return c.pos }

// Len returns the number of ids.
func (c *Cursor) Len() int { return len(c.ids) }

// SetIDs swaps the id sequence. The position follows the current target
// when the new sequence still contains it; otherwise the cursor is unset.
func (c *Cursor) SetIDs(ids []int) {
	cur, ok := c.Current()
	c.ids = ids
	c.pos = -1
	if !ok {
		return
	}
	for i, id := range ids {
		if id == cur {
			c.pos = i
			return
		}
	}
}

// MoveTo places the cursor on id if present.
func (c *Cursor) MoveTo(id int) bool {
	for i, v := range c.ids {
		if v == id {
			c.pos = i
			return true
		}
	}
	return false
}

// Reset unsets the cursor.
func (c *Cursor) Reset() { c.pos = -1 }
