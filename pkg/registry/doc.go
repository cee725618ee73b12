/*
Package registry implements the fabric's lifecycle registry (§4.D): the
authoritative on-disk record of every zooid's identity, lifecycle state,
and niche membership.

The registry is a single JSON document, loaded, reconciled, and
persisted through a snapshot-then-atomic-write sequence so that a reader
never observes a partially written file and a crash mid-write never
corrupts the live copy:

 1. copy the current live file to a version-stamped snapshot path
    (niche_map.v<N>.json);
 2. write the new document to a temp file in the same directory;
 3. fsync the temp file;
 4. rename it over the live path.

The rename is the only observable state transition, generalizing the
same snapshot/temp-file/rename sequence used by the original source's
registry and validated by its atomicity test.

Reconcile repairs three classes of drift between the zooid map and the
niche index lists: orphaned names (referencing a zooid that no longer
exists), misplaced names (a zooid listed under a niche state different
from its own lifecycle_state), and orphaned genome bindings.
*/
package registry
