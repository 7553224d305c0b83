// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	EventsPublished    = expvar.NewInt("events_published_total")
	EventsAcked        = expvar.NewInt("events_acked_total")
	EventsRetried      = expvar.NewInt("events_retried_total")
	EventsEvicted      = expvar.NewInt("events_evicted_total")
	PublishFailures    = expvar.NewInt("publish_failures_total")
	ChannelDrops       = expvar.NewMap("channel_drops")
	CommandsAccepted   = expvar.NewInt("commands_accepted_total")
	CommandsRejected   = expvar.NewInt("commands_rejected_total")
	CodeAttempts       = expvar.NewInt("code_attempts_total")
	CodeFailures       = expvar.NewInt("code_failures_total")
	MovementDetections = expvar.NewInt("movement_detections_total")
	AlarmsRaised       = expvar.NewInt("alarms_raised_total")
	BusTimeouts        = expvar.NewInt("bus_timeouts_total")
	SensorReadErrors   = expvar.NewInt("sensor_read_errors_total")
	ConfigReloads      = expvar.NewInt("config_reloads_total")
)
