package app

import (
	"io"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
)

// DeletePolicy decides what happens to pending offers when an item is deleted.
type DeletePolicy string

// DeletePolicyForbid and related constants define package defaults.
const (
	DeletePolicyForbid  DeletePolicy = "forbid"
	DeletePolicyCascade DeletePolicy = "cascade"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	// PermissiveTransitions lets rejected or cancelled offers be decided again. Accepted offers stay final.
	PermissiveTransitions bool
	// SupersedeOnAccept cancels other pending offers for items exchanged by an accept.
	SupersedeOnAccept bool
	DeletePolicy      DeletePolicy
	Logger            *charmLog.Logger
	Metrics           Metrics
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service implements the item and offer lifecycle over the store ports.
type Service struct {
	items    ItemStore
	offers   OfferStore
	profiles ProfileStore
	idGen    IDGenerator
	clock    Clock

	strict       bool
	supersede    bool
	deletePolicy DeletePolicy
	logger       *charmLog.Logger
	metrics      Metrics

	clockMu sync.Mutex
	last    time.Time
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = DeletePolicyForbid
	}
	if cfg.Logger == nil {
		cfg.Logger = charmLog.New(io.Discard)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Service{
		items:        repo,
		offers:       repo,
		profiles:     repo,
		idGen:        idGen,
		clock:        clock,
		strict:       !cfg.PermissiveTransitions,
		supersede:    cfg.SupersedeOnAccept,
		deletePolicy: cfg.DeletePolicy,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// now returns a UTC timestamp strictly after every earlier one.
func (s *Service) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	ts := s.clock().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}
	s.last = ts
	return ts
}
