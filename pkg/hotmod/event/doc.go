/*
Package event implements the in-process publish/subscribe bus that wires
modules to the runtime and to each other.

Delivery is synchronous and ordered: Publish takes a point-in-time
snapshot of a topic's subscribers under the bus lock, releases the lock,
and invokes each callback in registration order. Subscriptions added or
removed during a publish do not affect the in-flight delivery. A
panicking subscriber is recovered and logged; it never aborts the
publisher or starves later subscribers.

The bus is in-process only. There is no persistence and no network
transport; external delivery (logging, webhooks) is implemented by
subscribers.
*/
package event
