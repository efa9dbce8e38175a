// Package pubengine implements the server-side OPC UA Publish Engine: it
// pairs long-polled PublishRequests with notifications produced by
// Subscriptions, drives each subscription's five-state publishing state
// machine, manages sequence-number acknowledgements, enforces request-queue
// limits, and detects lifetime, keep-alive and request-timeout conditions.
//
// The primary lifecycle is:
//   - construct an Engine with NewEngine, supplying a ResponseSender that
//     hands PublishResponse/ServiceFault values to the transport layer
//   - AddSubscription as subscriptions are created elsewhere in the server
//   - call OnPublishRequest as the transport decodes client PublishRequests
//   - call Advance (directly from a virtual clock in tests, or via
//     StartScheduler/Shutdown for a real-time goroutine) to drive publishing
//     intervals forward
//
// OPC UA transport and chunking, monitored-item evaluation, and the
// address-space/session/security layers are external collaborators; this
// package only defines the narrow contracts it needs from them
// (NotificationSource, ResponseSender).
//
// All failures are reported on the wire as StatusCode values, never as Go
// errors — see errors.go's NewError, which exists purely for internal
// diagnostics. Exported methods on Engine and Subscription tolerate a nil
// receiver and guard their own state with per-component mutexes, so the
// package is safe for concurrent use from an embedder even though the
// publishing algorithm itself assumes a single logical execution context
// per subscription (see Advance).
package pubengine
