// Package client is the client engine for a model-driven substation
// device.
//
// A Session owns one connection. Everything else hangs off it:
//
//	s := client.NewSession(client.DefaultConfig())
//	if err := s.Connect(ctx, client.Endpoint{Host: "10.0.0.5", Port: 102}); err != nil {
//	    var ce *client.ConnectError
//	    ...
//	}
//	defer s.Close()
//
//	lds, _ := s.Browser().LogicalDevices(ctx)
//	tree, _ := s.Browser().DataAttributes(ctx, "LD0/GGIO1.AnIn1")
//
//	_ = s.DataSets().Create(ctx, "LD0/LLN0.Values", entries)
//	values, _ := s.DataSets().Read(ctx, "LD0/LLN0.Values")
//
//	sub, _ := s.Report("LD0/LLN0.RP.EventsRCB01")
//	_, _ = sub.GetValues(ctx)
//	_ = sub.Register(handler)
//
// Requests are queued and sent one at a time in submission order.
// Report frames are demultiplexed by a reader goroutine and delivered by
// the session's report.Dispatcher. Every operation other than Connect
// fails with ErrNotConnected, without any I/O, while the session is not
// connected.
package client
