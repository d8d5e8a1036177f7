// Package policy provides a rule-based ports.PolicyProvider.
//
// Rules are evaluated in order and the first rule whose actors, types and
// events all match decides. Patterns use path.Match syntax, so "*" matches
// any value and "order-*" matches a prefix. An empty list matches everything.
//
//	default: deny
//	rules:
//	  - actors: [admin]
//	    effect: allow
//	  - types: [order]
//	    events: [APPROVE]
//	    effect: deny
//	    reason: approvals need an admin
//	  - effect: allow
//	advice:
//	  - types: [order]
//	    max_attempts: 3
//	    backoff: 2s
//	    per_minute: 60
//
// The Service never consults a policy; the HTTP and MCP adapters do.
package policy
