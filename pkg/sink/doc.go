/*
Package sink reads back the artifacts a task run wrote, without ever
failing: a missing file, a truncated write, or any other I/O error all
resolve to empty output rather than an error.

	triple := sink.New(outDir).Read("disk-usage")
*/
package sink
