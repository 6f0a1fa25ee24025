/*
Package health provides pluggable liveness probes (HTTP, TCP, exec) and
consecutive failure/success tracking with a start-period grace window.

The Commander probes each still-running containerized task once per tick,
purely as diagnostic signal through the ambient logger — an unhealthy
verdict here does not trigger a restart, only a warning log. A task that
declares a port gets the TCP checker against one of its host ports; a
task with no port gets the exec checker running "true" inside its
container. The HTTP checker is not used by the Commander.

	checker := health.NewTCPChecker("127.0.0.1:8500")
	status := health.NewStatus()
	config := health.DefaultConfig()

	result := checker.Check(ctx)
	status.Update(result, config)
	if !status.Healthy {
		log.Warn().Int("failures", status.ConsecutiveFailures).Msg("unhealthy")
	}
*/
package health
