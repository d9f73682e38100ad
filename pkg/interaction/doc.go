// Package interaction implements the request/response side of a device
// session.
//
// A Client owns the exchange queue of one connection. Requests from any
// number of goroutines are queued FIFO and sent one at a time; the
// connection reader hands every response frame back through
// HandleResponse:
//
//	client := interaction.NewClient(conn, interaction.Config{})
//	go func() {
//	    for frame := range frames {
//	        resp, _ := wire.DecodeResponse(frame)
//	        _ = client.HandleResponse(resp)
//	    }
//	}()
//
//	lds, err := client.GetServerDirectory(ctx)
//	v, err := client.Read(ctx, "LD0/GGIO1.AnIn1.mag.f", model.FCMX)
//
// Error responses are returned as *StatusError, which unwraps to the model
// sentinels (model.ErrObjectNotFound, model.ErrAccessDenied, ...) or to
// ErrBusy / ErrRejected.
package interaction
