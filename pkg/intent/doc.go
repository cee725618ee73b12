/*
Package intent implements the intent router (§4.B): a directory scanner
that turns intent files dropped on disk into signals on the bus.

Grounded directly on the original source's intent_router.py and its
test suite: a closed mapping table from intent type to (signal,
ecosystem) pair, generalizing signal_router_v2.py's INTENT_TO_SIGNAL.
A successfully routed file is deleted; a file whose JSON fails to parse
is appended as a line to a dead letter queue and then deleted; a file
whose type has no mapping entry is silently deleted without ever
publishing anything.
*/
package intent
