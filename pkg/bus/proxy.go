package bus

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/kloros-colony/fabric/pkg/colonyctl"
	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/metrics"
)

// defaultHighWaterMark bounds each subscriber's outbound queue depth.
// Once reached, new messages for that subscriber are dropped.
const defaultHighWaterMark = 1000

// Proxy forwards every publisher message to every subscriber whose
// registered prefix matches the message topic, generalizing an
// XSUB/XPUB forwarder onto two loopback TCP listeners.
type Proxy struct {
	ingressAddr string
	egressAddr  string
	hwm         int
	ctl         *colonyctl.Controller

	mu   sync.Mutex
	subs map[*subscriberConn]struct{}

	ingressLn net.Listener
	egressLn  net.Listener
}

// NewProxy returns a Proxy that will bind ingressAddr (for publishers)
// and egressAddr (for subscribers) once Run is called.
func NewProxy(ingressAddr, egressAddr string, ctl *colonyctl.Controller) *Proxy {
	return &Proxy{
		ingressAddr: ingressAddr,
		egressAddr:  egressAddr,
		hwm:         defaultHighWaterMark,
		ctl:         ctl,
		subs:        map[*subscriberConn]struct{}{},
	}
}

type subscriberConn struct {
	conn net.Conn
	out  chan message

	mu       sync.Mutex
	prefixes map[string]struct{}
}

func newSubscriberConn(conn net.Conn, hwm int) *subscriberConn {
	return &subscriberConn{conn: conn, out: make(chan message, hwm), prefixes: map[string]struct{}{}}
}

func (s *subscriberConn) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.prefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

// Run binds both listeners and serves until ctx is canceled.
func (p *Proxy) Run(ctx context.Context) error {
	ingressLn, err := net.Listen("tcp", p.ingressAddr)
	if err != nil {
		return err
	}
	egressLn, err := net.Listen("tcp", p.egressAddr)
	if err != nil {
		ingressLn.Close()
		return err
	}
	p.ingressLn = ingressLn
	p.egressLn = egressLn

	log.Info("bus proxy listening: ingress=" + p.ingressAddr + " egress=" + p.egressAddr)

	go p.acceptLoop(ctx, ingressLn, p.handleIngress)
	go p.acceptLoop(ctx, egressLn, p.handleEgress)

	<-ctx.Done()
	ingressLn.Close()
	egressLn.Close()
	return nil
}

func (p *Proxy) acceptLoop(ctx context.Context, ln net.Listener, handle func(context.Context, net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Error("bus proxy accept error: " + err.Error())
				return
			}
		}
		go handle(ctx, conn)
	}
}

func (p *Proxy) handleIngress(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log.Debug("bus proxy: publisher connected")

	for {
		if err := p.ctl.WaitForNormalMode(ctx); err != nil {
			return
		}
		m, err := readMessage(conn)
		if err != nil {
			log.Debug("bus proxy: publisher disconnected")
			return
		}
		metrics.SignalsPublishedTotal.WithLabelValues(m.topic).Inc()
		p.fanOut(m)
	}
}

func (p *Proxy) fanOut(m message) {
	p.mu.Lock()
	targets := make([]*subscriberConn, 0, len(p.subs))
	for s := range p.subs {
		targets = append(targets, s)
	}
	p.mu.Unlock()

	for _, s := range targets {
		if !s.matches(m.topic) {
			continue
		}
		select {
		case s.out <- m:
		default:
			metrics.SignalsDroppedTotal.WithLabelValues(m.topic).Inc()
			log.Warn("bus proxy: dropping message, subscriber at high water mark: topic=" + m.topic)
		}
	}
}

func (p *Proxy) handleEgress(ctx context.Context, conn net.Conn) {
	sub := newSubscriberConn(conn, p.hwm)
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	log.Debug("bus proxy: subscriber connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			data, err := readFrame(conn)
			if err != nil {
				return
			}
			action, prefix, ok := readSubFrame(data)
			if !ok {
				continue
			}
			sub.mu.Lock()
			if action == subAction {
				sub.prefixes[prefix] = struct{}{}
				log.Info("bus proxy: SUB '" + prefix + "'")
			} else {
				delete(sub.prefixes, prefix)
				log.Info("bus proxy: UNSUB '" + prefix + "'")
			}
			sub.mu.Unlock()
		}
	}()

	defer func() {
		p.mu.Lock()
		delete(p.subs, sub)
		p.mu.Unlock()
		conn.Close()
		log.Debug("bus proxy: subscriber disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case m := <-sub.out:
			if err := writeMessage(conn, m); err != nil {
				return
			}
		}
	}
}
