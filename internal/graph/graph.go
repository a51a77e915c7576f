// Package graph compiles the declarative service graphs of the routing
// document into immutable, validated dependency DAGs.
package graph

import (
	"errors"
	"fmt"

	"github.com/aescanero/routerd/internal/config"
	"github.com/aescanero/routerd/internal/hostpool"
)

// Startup failures raised during graph compilation.
var (
	ErrUnknownHostGroup = errors.New("unknown hosts group")
	ErrDuplicateService = errors.New("service already present")
	ErrSelfDependency   = errors.New("service depends on itself")
	ErrUnknownService   = errors.New("unknown service in dependency")
	ErrDependencyCycle  = errors.New("cycle in dependencies")
)

// Service is a logical downstream endpoint of a graph. Immutable after
// compilation.
type Service struct {
	Name      string
	HostsFrom string
	Path      string
}

// CompiledGraph is an immutable, validated service graph. Forward holds
// the dependency edges (b in Forward[a] means a depends on b) and Reverse
// the dependent edges; both are the pre-validation snapshot, untouched by
// the cycle check. Order records the configuration order of services and
// is the deterministic iteration order for readiness scans.
type CompiledGraph struct {
	Name     string
	Services map[string]Service
	Order    []string
	Forward  map[string]map[string]struct{}
	Reverse  map[string]map[string]struct{}
}

// Dependencies returns the set of services the named service depends on.
func (g *CompiledGraph) Dependencies(name string) map[string]struct{} {
	return g.Forward[name]
}

// Dependents returns the set of services depending on the named service.
func (g *CompiledGraph) Dependents(name string) map[string]struct{} {
	return g.Reverse[name]
}

// Compile normalizes one graph of the routing document, builds its forward
// and reverse dependency trees and validates acyclicity. Compilation is
// pure in the document: the same input always yields the same graph.
func Compile(name string, decl config.Graph, hosts *hostpool.Pool) (*CompiledGraph, error) {
	g := &CompiledGraph{
		Name:     name,
		Services: make(map[string]Service, len(decl.Services)),
		Order:    make([]string, 0, len(decl.Services)),
		Forward:  make(map[string]map[string]struct{}, len(decl.Services)),
		Reverse:  make(map[string]map[string]struct{}),
	}

	for _, entry := range decl.Services {
		svc := Service{Name: entry.Name, HostsFrom: entry.HostsFrom, Path: entry.Path}

		if !hosts.Has(svc.HostsFrom) {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrUnknownHostGroup, svc.HostsFrom)
		}
		if _, ok := g.Services[svc.Name]; ok {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrDuplicateService, svc.Name)
		}

		g.Services[svc.Name] = svc
		g.Order = append(g.Order, svc.Name)
		g.Forward[svc.Name] = make(map[string]struct{})
	}

	for _, dep := range decl.Deps {
		if dep.A == dep.B {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrSelfDependency, dep.A)
		}
		if _, ok := g.Services[dep.A]; !ok {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrUnknownService, dep.A)
		}
		if _, ok := g.Services[dep.B]; !ok {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrUnknownService, dep.B)
		}

		g.Forward[dep.A][dep.B] = struct{}{}
		if g.Reverse[dep.B] == nil {
			g.Reverse[dep.B] = make(map[string]struct{})
		}
		g.Reverse[dep.B][dep.A] = struct{}{}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkAcyclic runs Kahn's algorithm on copies of the dependency trees;
// the retained Forward/Reverse stay untouched.
func (g *CompiledGraph) checkAcyclic() error {
	tree := make(map[string]map[string]struct{}, len(g.Forward))
	for name, deps := range g.Forward {
		set := make(map[string]struct{}, len(deps))
		for dep := range deps {
			set[dep] = struct{}{}
		}
		tree[name] = set
	}

	reverse := make(map[string]map[string]struct{}, len(g.Reverse))
	for name, dependents := range g.Reverse {
		set := make(map[string]struct{}, len(dependents))
		for dependent := range dependents {
			set[dependent] = struct{}{}
		}
		reverse[name] = set
	}

	for len(tree) > 0 {
		var noDeps []string
		for _, name := range g.Order {
			deps, ok := tree[name]
			if !ok || len(deps) > 0 {
				continue
			}
			noDeps = append(noDeps, name)
		}

		if len(noDeps) == 0 {
			return fmt.Errorf("%s: %w", g.Name, ErrDependencyCycle)
		}

		for _, name := range noDeps {
			for dependent := range reverse[name] {
				delete(tree[dependent], name)
			}
			delete(reverse, name)
			delete(tree, name)
		}
	}

	return nil
}
