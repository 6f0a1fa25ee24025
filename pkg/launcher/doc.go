// Package launcher runs one task invocation to completion, recording
// timing metadata into its structured result and persisting its output
// artifacts. A task body that errors or panics degrades to a logged
// line rather than propagating, so the Commander's scheduling loop is
// never at risk from task code.
package launcher
