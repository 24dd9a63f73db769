package barcode

// ConfirmationThreshold is the number of consecutive identical reads before a code is accepted
const ConfirmationThreshold = 2

// Confirmation filters single-frame misreads: a code is accepted once it has been read
// on ConfirmationThreshold consecutive frames
type Confirmation struct {
	lastCode string
	count    int
}

// Observe feeds one detected code and reports whether it is now confirmed
func (c *Confirmation) Observe(code string) bool {
	if code == c.lastCode {
		c.count++
	} else {
		c.lastCode = code
		c.count = 1
	}
	return c.count >= ConfirmationThreshold
}

// LastCode returns the most recently read code
func (c *Confirmation) LastCode() string {
	return c.lastCode
}

// Count returns the number of consecutive reads of LastCode
func (c *Confirmation) Count() int {
	return c.count
}

// Reset forgets all reads
func (c *Confirmation) Reset() {
	c.lastCode = ""
	c.count = 0
}
