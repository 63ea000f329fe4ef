// Package notifier delivers status messages to the fixed destination chat.
//
// # Contract
//
// Send never returns an error. A failed delivery (network error, Bot API
// rejection, rate-limit wait cancelled) is logged, published on the event bus
// as notifier.failed, and otherwise dropped. Callers keep running as if the
// message had been sent; the poll loop relies on this.
//
// # Transport
//
// Delivery goes through a transport.Sender (the Telegram adapter in
// production). A token bucket limits outbound calls.
//
// The Sender is expected to bound each call itself. The Telegram adapter does
// so through its HTTP client timeout; ctx only cuts short the limiter wait
// and the gap between message chunks.
//
// # History
//
// The service keeps a small in-memory history of delivered messages. The ops
// server shows it on /healthz as recent_notifications.
package notifier
