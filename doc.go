/*
Package espalier is an entity-lifecycle orchestration core: it moves entities through the named states of a declarative Specification, one command at a time.

Every entity (an order, a ticket, a job) is addressed by its type and id. Its type names a Specification listing the states, the event-keyed transitions between them, the guards that gate those transitions and the actions that transform the entity's context on the way. Executing a command produces a new, schema-validated state and exactly one immutable audit entry, persisted together.

# Concept

The Service is a thin façade. It resolves the Specification from a registry, loads the entity from a storage provider (or synthesizes it at the initial state), hands both to the pure transition executor and persists the outcome. Storage, clocks, identifiers and authorization are collaborators behind the interfaces of package ports, so the same core runs embedded in a CLI, behind an HTTP API or as an MCP tool server.

# Key Features

  - Deterministic Execution: guards observe the merged context; actions run exit, transition, entry; the schema check is the last gate.
  - All-or-Nothing Persistence: a failed command never touches storage.
  - Optimistic Versioning: every successful command increments the entity version by one and storage providers reject stale writes.
  - Strict Contracts: specifications are validated once, at registration, for reference integrity and reachability.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/espalier"
		"github.com/aretw0/espalier/pkg/adapters/memory"
		"github.com/aretw0/espalier/pkg/domain"
		"github.com/aretw0/espalier/pkg/registry"
		"github.com/aretw0/espalier/pkg/schema"
	)

	func main() {
		reg := registry.NewRegistry()
		err := reg.Register(&domain.Specification{
			ID:            "ticket",
			ContextSchema: schema.Schema{},
			InitialState:  "open",
			States: []domain.State{
				{Name: "open", On: []domain.Transition{{Event: "CLOSE", Target: "closed"}}},
				{Name: "closed"},
			},
		})
		if err != nil {
			log.Fatal(err)
		}

		svc := espalier.New(reg, memory.NewStore())
		res, err := svc.Execute(context.Background(), domain.Command{
			EntityType: "ticket",
			EntityID:   "T-1",
			Event:      "CLOSE",
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("%s -> %s", res.From, res.To)
	}
*/
package espalier
