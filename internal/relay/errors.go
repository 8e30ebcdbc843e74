package relay

import "errors"

// ErrHubStopped is returned by Register when the hub has already shut down.
var ErrHubStopped = errors.New("relay: hub stopped")
