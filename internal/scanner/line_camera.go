package scanner

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var errCameraBusy = errors.New("camera already started")

// LineCamera turns a line-oriented device, such as a keyboard-wedge or
// serial barcode reader, into a Camera. The device is read for the life of
// the process; lines read while stopped are discarded.
type LineCamera struct {
	src io.Reader
	log logrus.FieldLogger

	once    sync.Once
	mu      sync.Mutex
	handler func(string)
	active  bool
}

func NewLineCamera(src io.Reader, logger logrus.FieldLogger) *LineCamera {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LineCamera{src: src, log: logger.WithField("module", "scanner")}
}

func (c *LineCamera) Start(onDecode func(payload string)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return errCameraBusy
	}
	c.active = true
	c.handler = onDecode
	c.once.Do(func() { go c.readLoop() })
	return nil
}

func (c *LineCamera) Stop() error {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	return nil
}

// Clear forgets the decode handler of the last acquisition.
func (c *LineCamera) Clear() error {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
	return nil
}

func (c *LineCamera) readLoop() {
	lines := bufio.NewScanner(c.src)
	for lines.Scan() {
		line := lines.Text()
		c.mu.Lock()
		handler, active := c.handler, c.active
		c.mu.Unlock()
		if !active || handler == nil {
			continue
		}
		// Each decode runs on its own goroutine so a scan arriving during
		// a lookup reaches the session and is dropped there.
		go handler(line)
	}
	if err := lines.Err(); err != nil {
		c.log.WithError(err).Warn("scanner device read failed")
		return
	}
	c.log.Info("scanner device closed")
}

// ManualCamera is the Camera used when no scanner device is configured.
// Codes then arrive only through Session.Decode.
type ManualCamera struct{}

func (ManualCamera) Start(func(string)) error { return nil }

func (ManualCamera) Stop() error { return nil }

func (ManualCamera) Clear() error { return nil }
