package bus

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/types"
)

// OnMessage is invoked for every message whose topic matches a
// subscribed prefix.
type OnMessage func(topic string, sig types.Signal)

// Subscriber connects to the proxy's egress endpoint, registers one or
// more prefixes, and dispatches incoming messages to an OnMessage
// callback. It reconnects silently with exponential backoff.
type Subscriber struct {
	addr      string
	prefixes  []string
	onMessage OnMessage
}

// NewSubscriber returns a Subscriber for addr, matching any topic with
// one of the given prefixes (an empty prefix matches all topics).
func NewSubscriber(addr string, onMessage OnMessage, prefixes ...string) *Subscriber {
	return &Subscriber{addr: addr, prefixes: prefixes, onMessage: onMessage}
}

// Run connects and dispatches messages until ctx is canceled,
// reconnecting with exponential backoff on any connection error.
func (s *Subscriber) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			log.Debug("bus subscriber: disconnected, retrying: " + err.Error())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Subscriber) runOnce(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, p := range s.prefixes {
		if err := writeSubFrame(conn, subAction, p); err != nil {
			return err
		}
	}
	if len(s.prefixes) == 0 {
		if err := writeSubFrame(conn, subAction, ""); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		m, err := readMessage(conn)
		if err != nil {
			return err
		}
		var sig types.Signal
		if err := json.Unmarshal(m.payload, &sig); err != nil {
			log.Warn("bus subscriber: malformed payload, dropping: " + err.Error())
			continue
		}
		if s.onMessage != nil {
			s.onMessage(m.topic, sig)
		}
	}
}
