// Package policy implements the deletion-policy stack of spec.md §4.6,
// grounded on original_source/lib/detox/policy.py's DeletionPolicy /
// DeletionPolicyManager.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package policy

import "github.com/cpausmit/dynamo/internal/catalog"

// Decision is one policy's (or the stack's) verdict on a replica.
type Decision int

const (
	Keep Decision = iota
	Delete
	KeepOverride
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "KEEP"
	case Delete:
		return "DELETE"
	case KeepOverride:
		return "KEEP_OVERRIDE"
	default:
		return "UNKNOWN"
	}
}

// Demand is whatever makes a dataset wanted (subscriptions, popularity,
// locks); left abstract per spec.md's deliberately thin contract.
type Demand interface {
	// Wants reports whether ds is still demanded at all; most policies key
	// off of this plus replica-specific signals looked up elsewhere.
	Wants(ds *catalog.Dataset) bool
}

// EvalFunc is the pure predicate behind one named policy: true triggers
// the policy's Decision, false always yields Keep.
type EvalFunc func(r *catalog.DatasetReplica, demand Demand) bool

// DeletionPolicy pairs a name and decision with the predicate that
// triggers it, mirroring DeletionPolicy(name, fct, decision) in the
// original.
type DeletionPolicy struct {
	Name     string
	Decision Decision
	Eval     EvalFunc
}

// eval returns p.Decision if the predicate fires, else Keep.
func (p DeletionPolicy) eval(r *catalog.DatasetReplica, demand Demand) Decision {
	if p.Eval(r, demand) {
		return p.Decision
	}
	return Keep
}

// NewPolicy builds a DeletionPolicy, the Go analogue of the original's
// constructor.
func NewPolicy(name string, decision Decision, fn EvalFunc) DeletionPolicy {
	return DeletionPolicy{Name: name, Decision: decision, Eval: fn}
}

// Manager holds a stack of policies and resolves a collective decision per
// spec.md §4.6's evaluation order.
type Manager struct {
	policies []DeletionPolicy
}

// NewManager builds a Manager from an initial policy stack.
func NewManager(policies ...DeletionPolicy) *Manager {
	return &Manager{policies: append([]DeletionPolicy(nil), policies...)}
}

// AddPolicy appends one or more policies to the end of the stack.
func (m *Manager) AddPolicy(policies ...DeletionPolicy) {
	m.policies = append(m.policies, policies...)
}

// Decide evaluates the stack in declared order. A KEEP_OVERRIDE anywhere
// short-circuits to Keep; otherwise any DELETE makes the final result
// Delete; otherwise Keep.
func (m *Manager) Decide(r *catalog.DatasetReplica, demand Demand) Decision {
	result := Keep
	for _, p := range m.policies {
		switch p.eval(r, demand) {
		case Delete:
			result = Delete
		case KeepOverride:
			return Keep
		}
	}
	return result
}
