package graph

import "github.com/hashicorp/go-hclog"

// Option configures a Store
type Option func(*Store)

// WithGraphID sets a custom ID for the graph
func WithGraphID(id string) Option {
	return func(s *Store) {
		s.graphID = id
	}
}

// WithLogger sets the logger used for structural mutations
func WithLogger(logger hclog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.Named("graph")
		}
	}
}
