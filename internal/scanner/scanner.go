package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/apperror"
	"kasirinaja/terminal/internal/domain"
)

var (
	ErrClosed          = errors.New("scanner is closed")
	ErrAlreadyOpen     = errors.New("scanner is already open")
	ErrDropped         = errors.New("scan dropped: previous scan still resolving")
	ErrEmptyPayload    = errors.New("scanned code is empty")
	ErrProductNotFound = errors.New("no product for scanned code")
	ErrLookupFailed    = errors.New("product lookup failed")
)

type State int

const (
	Closed State = iota
	Scanning
	Resolving
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Scanning:
		return "scanning"
	case Resolving:
		return "resolving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Camera is an acquired decode source. Start must return before the first
// onDecode call.
type Camera interface {
	Start(onDecode func(payload string)) error
	Stop() error
	Clear() error
}

type Resolver interface {
	ProductByQR(ctx context.Context, code string) (domain.Product, error)
}

// Session is one scan-to-cart session over a camera. At most one decode is
// resolved at a time; decodes arriving meanwhile are dropped.
type Session struct {
	camera   Camera
	resolver Resolver
	add      func(domain.Product)
	report   func(error)
	log      logrus.FieldLogger

	mu    sync.Mutex
	state State
	// gen changes on every acquisition and release so a lookup that
	// finishes after Close can tell its session is gone.
	gen uint64
}

// New builds a closed session. add receives resolved products; report, if
// set, receives errors from decodes delivered by the camera.
func New(camera Camera, resolver Resolver, add func(domain.Product), report func(error), logger logrus.FieldLogger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{
		camera:   camera,
		resolver: resolver,
		add:      add,
		report:   report,
		log:      logger.WithField("module", "scanner"),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open acquires the camera. Decodes it delivers are resolved with ctx.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Closed {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.state = Scanning
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	err := s.camera.Start(func(payload string) {
		if _, err := s.Decode(ctx, payload); err != nil && !errors.Is(err, ErrDropped) && s.report != nil {
			s.report(err)
		}
	})
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.state = Closed
			s.gen++
		}
		s.mu.Unlock()
		return fmt.Errorf("start camera: %w", err)
	}
	return nil
}

// Close releases the camera. Closing a closed session does nothing.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	s.releaseLocked()
}

// Decode resolves one scanned payload. A found product is added and the
// session closes; any other result leaves it scanning.
func (s *Session) Decode(ctx context.Context, payload string) (domain.Product, error) {
	s.mu.Lock()
	switch s.state {
	case Closed:
		s.mu.Unlock()
		return domain.Product{}, ErrClosed
	case Resolving:
		s.mu.Unlock()
		s.log.WithField("payload", payload).Debug("scan dropped while resolving")
		return domain.Product{}, ErrDropped
	}
	code := Normalize(payload)
	if code == "" {
		s.mu.Unlock()
		return domain.Product{}, ErrEmptyPayload
	}
	s.state = Resolving
	gen := s.gen
	s.mu.Unlock()

	product, err := s.resolver.ProductByQR(ctx, code)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return domain.Product{}, ErrClosed
	}
	if err != nil {
		s.state = Scanning
		s.mu.Unlock()
		if errors.Is(err, apperror.ErrNotFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, code)
		}
		return domain.Product{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	s.releaseLocked()
	s.mu.Unlock()

	if s.add != nil {
		s.add(product)
	}
	return product, nil
}

func (s *Session) releaseLocked() {
	s.state = Closed
	s.gen++
	if err := s.camera.Stop(); err != nil {
		s.log.WithError(err).Warn("camera stop failed")
	}
	if err := s.camera.Clear(); err != nil {
		s.log.WithError(err).Warn("camera clear failed")
	}
}

// Normalize strips every whitespace rune from a scanned payload.
func Normalize(payload string) string {
	return strings.Join(strings.Fields(payload), "")
}
