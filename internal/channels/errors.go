package channels

import "errors"

// ErrNoAdapter is returned by Registry.Deliver when no outbound adapter is
// registered for a message's channel.
var ErrNoAdapter = errors.New("channels: no outbound adapter registered for channel")
