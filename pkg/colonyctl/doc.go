/*
Package colonyctl is the process-wide maintenance-mode and kill-switch
singleton described in the specification's Design Notes ("Global mutable
state... represent them as a tiny singleton service with an explicit
init/teardown and an accessor; do not scatter flags").

Every worker's dispatch loop calls WaitForNormalMode before processing a
message; the bus proxy's poll loop does the same before forwarding frames.
Shutdown flips the kill switch, which every dispatch loop inspects at the
top of its own loop before draining in-flight work and exiting.
*/
package colonyctl
