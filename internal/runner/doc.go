// Package runner drives a sequential validation pass over selected questions.
//
// A Runner owns one authoritative RunState. Operator commands (Start, Pause,
// Resume, Stop) and the run loop are the only writers; front ends read it
// through Snapshot or Subscribe. Key properties:
//   - one run at a time, items processed strictly in input order
//   - one Outcome per input item, each ending in valid, fixed or failed
//   - a correction is persisted before its item is reported fixed
//   - Stop is cooperative: an in-flight validation call finishes on its own
//     and its result is discarded
package runner
