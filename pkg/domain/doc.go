/*
Package domain contains the core domain models of the espalier engine.

It defines the static description of an entity lifecycle (the Specification),
the runtime snapshot of one entity (EntityState), the immutable audit trail
(AuditEntry) and the error taxonomy shared by every layer. This package is kept
pure and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Specification: Named states, event-keyed transitions, guards, actions and a context schema.
  - State: One named state with its outgoing transitions and optional entry/exit actions.
  - Transition: An edge to a target state, optionally gated by a guard and paired with an action.
  - EntityState: The persisted snapshot of one entity (state name, context, version).
  - AuditEntry: An append-only record of one attempted command.
  - TransitionResult: What a successful command produced, before persistence.
*/
package domain
