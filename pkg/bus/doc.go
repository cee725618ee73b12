/*
Package bus implements the signal bus (§4.A): a process-wide broadcast
transport with subscription prefixes and loopback-only connectivity.

It is a direct generalization of the original source's umn_proxy.py, an
XSUB/XPUB forwarder: a single Proxy binds two loopback listeners —
ingress, where publishers connect, and egress, where subscribers connect
— and forwards every publisher frame to every subscriber whose
registered prefix is a prefix of the message topic. No pack dependency
provides this exact XSUB/XPUB-style prefix-forwarding semantic over a
private transport, so the wire protocol itself is a small hand-rolled,
length-prefixed two-frame message (topic, canonical JSON payload) on top
of net.Listener/net.Conn.

As in the original, subscription changes are logged verbosely (SUB/UNSUB
plus prefix), the proxy's outbound queue per subscriber is bounded, and
once that bound is reached new messages are unconditionally dropped and
logged rather than applying backpressure to the publisher. Publishers
rate-limit their own send attempts with golang.org/x/time/rate and sleep
briefly after connecting (slow-joiner mitigation) before their first
publish.
*/
package bus
