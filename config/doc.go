// Package config loads the lattice configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. The environment names MESSAGE_BROKER, BROKER_URL and
// LOG_LEVEL are honoured for compatibility with existing deployments; all
// other variables use the LATTICE_ prefix.
//
//	broker:
//	  kind: nats
//	  url: nats://localhost:4222
//	runtime:
//	  task_timeout: 30s
//	  task_retries: 3
//	  retry_backoff: exponential
//	schedules:
//	  - name: heartbeat
//	    cron: "*/5 * * * *"
//	    intent:
//	      intent: echo
//	      args: {beat: true}
package config
