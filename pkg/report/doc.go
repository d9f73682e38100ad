// Package report handles report subscriptions and the delivery of
// device-pushed reports.
//
// A Subscription wraps one report control block (RCB). Its values are read
// with GetValues, edited locally through the setters, and written with
// Commit, which sends only the fields named by the caller:
//
//	sub := report.NewSubscription(ref, svc, dispatcher, report.SubscriptionConfig{})
//	if _, err := sub.GetValues(ctx); err != nil { ... }
//	_ = sub.Register(func(ev *report.Event) { ... })
//
//	sub.SetTriggerOptions(report.TriggerDataUpdate | report.TriggerIntegrity | report.TriggerGI)
//	_ = sub.SetIntegrityPeriod(5 * time.Second)
//	sub.SetEnabled(true)
//	err := sub.Commit(ctx, report.FieldEnabled, report.FieldTriggerOptions, report.FieldIntegrityPeriod)
//
// The Dispatcher is owned by a session. The session reader hands it raw
// report frames; a single goroutine decodes them and calls the handler
// registered for the frame's report ID. Each registration has a gate that
// subscriptions close when reporting is disabled, so frames that arrive
// after a disabling commit are not delivered.
package report
