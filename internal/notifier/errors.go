package notifier

import (
	"errors"
	"fmt"
)

var errNoSender = errors.New("notifier has no sender")

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("sender panicked: %v", p.v) }
