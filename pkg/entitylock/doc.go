/*
Package entitylock serializes commands addressed to the same entity.

The orchestration core does not lock: concurrent commands against one entity
race and the storage layer rejects the loser with a version conflict. Hosts that
prefer queuing over rejection wrap each command in Manager.WithLock, which holds a
reference counted in-process mutex per entity and, optionally, a distributed lock
shared by every replica.
*/
package entitylock
