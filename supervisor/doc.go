// Package supervisor wraps handler invocations with timeout and retry policy
// and keeps the table of live tasks.
//
// Every supervised task is registered under a name (typically the intent id)
// for exactly as long as its operation runs. The entry is removed on success,
// error, timeout, panic and cancellation alike, so Live always reflects what
// is currently executing.
//
// Timeouts are reported as *core.TimeoutError and exhausted retries as
// *core.RetryExhaustedError; neither is ever conflated with the operation's
// own failure.
package supervisor
