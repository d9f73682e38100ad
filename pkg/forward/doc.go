// Package forward publishes received reports to external systems.
//
// A Forwarder is a report.Handler that converts each event to a JSON
// Message and hands it to a bounded queue. Worker goroutines publish
// every message to all configured sinks with retries:
//
//	fwd := forward.New(forward.Config{Logger: logger}, mqttSink, kafkaSink)
//	defer fwd.Stop(ctx)
//	sub.Register(fwd.Handler())
//
// Sinks exist for MQTT (one topic per report ID), Kafka (keyed by report
// ID) and Valkey/Redis (pub/sub plus a last-value key).
package forward
