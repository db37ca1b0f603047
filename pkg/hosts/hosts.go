package hosts

import (
	"errors"
	"math/rand/v2"
)

var ErrNoHosts = errors.New("at least one host is required")

// Selector spreads redirects over a fixed set of front end hosts.
type Selector struct {
	hosts []string
	intn  func(int) int
}

func New(hosts []string) (*Selector, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	return &Selector{
		hosts: append([]string(nil), hosts...),
		intn:  rand.IntN,
	}, nil
}

// Select returns one of the hosts, uniformly at random.
func (s *Selector) Select() string {
	return s.hosts[s.intn(len(s.hosts))]
}

func (s *Selector) Hosts() []string {
	return append([]string(nil), s.hosts...)
}
