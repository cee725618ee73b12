package bus

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kloros-colony/fabric/pkg/canon"
	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/types"
)

// slowJoinerDelay is how long a Publisher sleeps after its first
// successful connect, giving subscriber sockets time to finish their
// handshake before the first message is sent.
const slowJoinerDelay = 150 * time.Millisecond

// reconnect backoff bounds.
const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// Publisher sends Signal messages to the proxy's ingress endpoint. A
// Publisher surfaces no error when the proxy is unreachable: per §4.A,
// messages are simply dropped and connection retry happens silently
// with exponential backoff.
type Publisher struct {
	addr    string
	limiter *rate.Limiter

	mu          sync.Mutex
	conn        net.Conn
	firstSend   bool
	backoff     time.Duration
	nextRetryAt time.Time
}

// NewPublisher returns a Publisher that will lazily connect to addr.
// limiter may be nil to disable local rate limiting.
func NewPublisher(addr string, limiter *rate.Limiter) *Publisher {
	return &Publisher{addr: addr, limiter: limiter, backoff: minBackoff}
}

// Publish sends a Signal on topic. Rate limiting (if configured) blocks
// until ctx allows a send slot; connectivity failures are logged and
// swallowed.
func (p *Publisher) Publish(ctx context.Context, topic string, sig types.Signal) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
	}

	payload, err := canon.Marshal(sig)
	if err != nil {
		log.Error("bus publisher: marshal signal: " + err.Error())
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		if time.Now().Before(p.nextRetryAt) {
			log.Debug("bus publisher: backing off, dropping message: topic=" + topic)
			return
		}
		if err := p.dialLocked(); err != nil {
			p.backoff = nextBackoff(p.backoff)
			p.nextRetryAt = time.Now().Add(p.backoff)
			log.Warn("bus publisher: connect failed, dropping message: " + err.Error())
			return
		}
	}

	if err := writeMessage(p.conn, message{topic: topic, payload: payload}); err != nil {
		log.Warn("bus publisher: send failed, dropping message: " + err.Error())
		p.conn.Close()
		p.conn = nil
		p.backoff = nextBackoff(p.backoff)
		p.nextRetryAt = time.Now().Add(p.backoff)
	}
}

// dialLocked connects (or reconnects) to the ingress endpoint. Callers
// must hold p.mu.
func (p *Publisher) dialLocked() error {
	conn, err := net.Dial("tcp", p.addr)
	if err != nil {
		return err
	}
	p.conn = conn
	if !p.firstSend {
		time.Sleep(slowJoinerDelay)
		p.firstSend = true
	}
	p.backoff = minBackoff
	return nil
}

// Close releases the publisher's connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// nextBackoff doubles the retry interval up to maxBackoff.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
