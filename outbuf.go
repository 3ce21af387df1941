// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

// writeOutput appends data to the client's scratch output buffer, flushing
// through the screen's push callback whenever the buffer fills, per §4.7's
// "concatenate scratch segments and direct passes" output model.
func (c *Client) writeOutput(data []byte) error {
	for len(data) > 0 {
		c.mu.Lock()
		space := len(c.outBuf) - c.outUsed
		if space == 0 {
			c.mu.Unlock()
			if err := c.flushOutput(); err != nil {
				return err
			}
			continue
		}
		n := len(data)
		if n > space {
			n = space
		}
		copy(c.outBuf[c.outUsed:], data[:n])
		c.outUsed += n
		c.mu.Unlock()
		data = data[n:]
	}
	return nil
}

// flushOutput pushes any buffered bytes to the transport immediately.
func (c *Client) flushOutput() error {
	c.mu.Lock()
	if c.outUsed == 0 {
		c.mu.Unlock()
		return nil
	}
	buf := append([]byte(nil), c.outBuf[:c.outUsed]...)
	c.outUsed = 0
	c.mu.Unlock()

	return c.screen.pushBytes(c, buf)
}

// outputSpaceBytes returns the number of bytes currently free in the
// client's scratch output buffer, used by encoders (Raw in particular) to
// size a flush-free write.
func (c *Client) outputSpaceBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outBuf) - c.outUsed
}
