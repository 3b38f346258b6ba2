// Package worker hosts the request-interception worker: its lifecycle state
// machine, the install (precache) and activate (cache cleanup + claim) event
// handlers, and the per-request fetch dispatch onto the strategy executors.
//
// Every lifecycle and fetch event is an Event. Handlers register their async
// work with Event.WaitUntil and the event only settles once all of it
// finished; the Host tracks every open event so Shutdown can drain pending
// cache writes and revalidations instead of dropping them.
package worker
