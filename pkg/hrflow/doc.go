// Package hrflow contains the HR orchestration definitions hosted by the
// turno engine: approval escalation chains, poll-until-terminal trackers
// for external fulfillment systems, and timed notification sequences.
//
// The definitions are deterministic workflow bodies written against
// api.OrchestrationContext. The business actions they trigger (sending
// mail, calling ServiceNow, scheduling payroll disbursement) are opaque
// activities invoked by name; hosts register real implementations for
// those names, or RegisterSimulatedActivities for local development and
// tests.
package hrflow
