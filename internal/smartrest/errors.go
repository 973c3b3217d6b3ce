package smartrest

import "errors"

// ErrDecode is returned when an inbound payload is not valid UTF-8.
var ErrDecode = errors.New("smartrest: payload is not valid UTF-8")
