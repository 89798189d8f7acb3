package channel

import "github.com/example/channel-bridge/internal/message"

// Registry resolves the integration serving a channel name taken from a URL.
type Registry map[message.Channel]*Integration

func NewRegistry(integrations ...*Integration) Registry {
	r := make(Registry, len(integrations))
	for _, i := range integrations {
		r[i.Channel()] = i
	}
	return r
}

func (r Registry) Lookup(name string) (*Integration, bool) {
	i, ok := r[message.Channel(name)]
	return i, ok
}
