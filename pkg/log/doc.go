/*
Package log provides structured logging for the task commander using zerolog.

The global Logger is configured once via Init and then accessed either
directly or through one of the WithComponent/WithTask/WithContainer child
logger constructors, which attach a field identifying the origin of a log
line without requiring every call site to repeat it.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	commanderLog := log.WithComponent("commander")
	commanderLog.Info().Str("task", "disk-usage").Msg("dispatched")
*/
package log
