package outbox

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrBreakerOpen возвращается, пока брокер считается недоступным.
var ErrBreakerOpen = errors.New("outbox publisher circuit breaker is open")

// BreakerState — состояние circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker размыкает публикацию после maxFailures ошибок подряд и пропускает
// одну пробную попытку по истечении resetTimeout.
type Breaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	failures    int
	lastFailure time.Time
	state       BreakerState
	onChange    func(BreakerState)
	logger      *log.Entry
}

// NewBreaker создаёт breaker. maxFailures <= 0 отключает размыкание.
func NewBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *Breaker {
	if logger == nil {
		logger = log.WithField("component", "outbox-breaker")
	}
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        BreakerClosed,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute вызывает fn, если breaker не разомкнут.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if b.maxFailures > 0 && (b.state == BreakerHalfOpen || b.failures >= b.maxFailures) {
			b.setState(BreakerOpen)
			b.logger.WithField("failures", b.failures).Warn("circuit breaker opened")
		}
		return err
	}

	if b.state == BreakerHalfOpen {
		b.setState(BreakerClosed)
		b.logger.Info("circuit breaker closed")
	}
	b.failures = 0
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) <= b.resetTimeout {
		return ErrBreakerOpen
	}
	b.setState(BreakerHalfOpen)
	b.logger.Info("circuit breaker half-open")
	return nil
}

func (b *Breaker) setState(state BreakerState) {
	b.state = state
	if b.onChange != nil {
		b.onChange(state)
	}
}
