// Package storage keeps an optional journal of delivered notifications.
//
// The journal is write-only from the polling loop's point of view: nothing
// in it is read back into loop state. Drivers: "file" (JSON Lines),
// "sqlite" and "redis". An empty driver or "none" disables it.
package storage
