// Package remotecontrol adjusts the engine's tuned frequency from a
// hamlib-compatible rig control daemon (e.g. rigctld), the way the
// teacher repo's core/vfo package drives its VFO display, but
// forwarding changes into the DSP engine instead of a GUI widget.
package remotecontrol

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ftl/rigproxy/pkg/protocol"
	"github.com/pkg/errors"
)

const defaultPollingInterval = 500 * time.Millisecond

// FrequencyHandler is called with the rig's frequency, in Hz,
// whenever a poll observes a change.
type FrequencyHandler func(hz uint64)

// Open dials a hamlib-compatible rig control daemon at address (empty
// defaults to localhost:4532) and returns a Controller ready to Run.
func Open(address string, pollingInterval time.Duration, onFrequencyChange FrequencyHandler) (*Controller, error) {
	if address == "" {
		address = "localhost:4532"
	}

	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "remotecontrol: cannot open rig connection")
	}

	trx := protocol.NewTransceiver(conn)
	trx.WhenDone(func() {
		conn.Close()
	})

	if pollingInterval <= 0 {
		pollingInterval = defaultPollingInterval
	}

	return &Controller{
		trx:               trx,
		pollingInterval:   pollingInterval,
		onFrequencyChange: onFrequencyChange,
		setFrequency:      make(chan uint64, 10),
	}, nil
}

// Controller polls a rig's current frequency and can push a new
// frequency back to it.
type Controller struct {
	trx               *protocol.Transceiver
	pollingInterval   time.Duration
	onFrequencyChange FrequencyHandler
	setFrequency      chan uint64

	mu               sync.RWMutex
	currentFrequency uint64
}

// Run polls and pushes frequency changes until stop is closed.
func (c *Controller) Run(stop <-chan struct{}) {
	defer c.shutdown()

	for {
		select {
		case <-time.After(c.pollingInterval):
			c.pollFrequency()
		case f := <-c.setFrequency:
			c.sendFrequency(f)
		case <-stop:
			return
		}
	}
}

func (c *Controller) shutdown() {
	c.trx.Close()
	log.Print("remotecontrol: shutdown")
}

func (c *Controller) pollFrequency() {
	request := protocol.Request{Command: protocol.ShortCommand("f")}
	response, err := c.trx.Send(context.Background(), request)
	if err != nil {
		log.Print("remotecontrol: polling frequency failed: ", err)
		return
	}
	if len(response.Data) == 0 {
		log.Print("remotecontrol: empty frequency response")
		return
	}

	f, err := parseFrequency(response.Data[0])
	if err != nil {
		log.Printf("remotecontrol: wrong frequency format %q: %v", response.Data[0], err)
		return
	}

	if c.updateCurrentFrequency(f) && c.onFrequencyChange != nil {
		c.onFrequencyChange(f)
	}
}

func (c *Controller) updateCurrentFrequency(f uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f == c.currentFrequency {
		return false
	}
	c.currentFrequency = f
	return true
}

func (c *Controller) sendFrequency(f uint64) {
	request := protocol.Request{Command: protocol.ShortCommand("F"), Args: []string{formatFrequency(f)}}
	if _, err := c.trx.Send(context.Background(), request); err != nil {
		log.Print("remotecontrol: sending frequency failed: ", err)
	}
}

// SetFrequency requests that the rig be tuned to f. Asynchronous: the
// request is queued and sent on Run's next turn.
func (c *Controller) SetFrequency(f uint64) {
	c.setFrequency <- f
}

// CurrentFrequency returns the last frequency observed from the rig.
func (c *Controller) CurrentFrequency() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentFrequency
}

func formatFrequency(f uint64) string {
	return fmt.Sprintf("%d", f)
}

func parseFrequency(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
