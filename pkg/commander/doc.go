/*
Package commander implements the periodic task orchestrator's scheduling
loop.

Each tick reaps finished containers before evaluating and dispatching
tasks in their declared order; dispatch runs a task either synchronously
in-process (containerless) or as a detached container whose completion
is picked up by a later reap. The three scheduler maps — last execution
time, running containers, and collected output — are owned exclusively
by the loop goroutine and read only through Commander's exported
accessors.
*/
package commander
