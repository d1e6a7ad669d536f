// Package dispatch is the in-process fan-out core.
//
// A Dispatcher owns one registry.Registry. Dispatch runs the primary
// handlers of a handle and then its post handlers, both in registration
// order. Handler failures are isolated: the rest of the chain still runs and
// the failures come back joined from Dispatch.
package dispatch
