package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Driver string

	// file and sqlite
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// redis
	Addr     string
	Password string
	DB       int
	Key      string

	// MaxEntries bounds the journal; <=0 keeps everything.
	MaxEntries int
}

type Kind string

const (
	KindStatus  Kind = "status"
	KindFailure Kind = "failure"
)

// Delivery is one notification handed to the notifier.
type Delivery struct {
	At      time.Time `json:"at"`
	CycleID string    `json:"cycle_id"`
	Kind    Kind      `json:"kind"`
	Text    string    `json:"text"`
	Error   string    `json:"error,omitempty"`
}
