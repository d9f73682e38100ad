package interaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// call runs one exchange and checks its status. When out is non-nil the
// response payload is decoded into it.
func (c *Client) call(ctx context.Context, req *wire.Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := checkStatus(req.Service, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.DecodePayload(out); err != nil {
		return fmt.Errorf("%s response: %w", req.Service, errors.Join(ErrUnexpectedReply, err))
	}
	return nil
}

func (c *Client) names(ctx context.Context, req *wire.Request) ([]string, error) {
	var list wire.NameList
	if err := c.call(ctx, req, &list); err != nil {
		return nil, err
	}
	return list.Names, nil
}

// GetServerDirectory lists the logical devices in server order.
func (c *Client) GetServerDirectory(ctx context.Context) ([]string, error) {
	return c.names(ctx, &wire.Request{Service: wire.ServiceGetServerDirectory})
}

// GetLogicalDeviceDirectory lists the logical nodes of ld.
func (c *Client) GetLogicalDeviceDirectory(ctx context.Context, ld string) ([]string, error) {
	return c.names(ctx, &wire.Request{
		Service:   wire.ServiceGetLogicalDeviceDirectory,
		Reference: model.ObjectReference(ld),
	})
}

// GetLogicalNodeDirectory lists the objects of one class under ln.
func (c *Client) GetLogicalNodeDirectory(ctx context.Context, ln model.ObjectReference, class model.NodeClass) ([]string, error) {
	return c.names(ctx, &wire.Request{
		Service:   wire.ServiceGetLogicalNodeDirectory,
		Reference: ln,
		Class:     class,
	})
}

// GetDataDirectory lists the direct children of a data object or
// structured attribute. A leaf has no children.
func (c *Client) GetDataDirectory(ctx context.Context, ref model.ObjectReference) ([]string, error) {
	return c.names(ctx, &wire.Request{
		Service:   wire.ServiceGetDataDirectory,
		Reference: ref,
	})
}

// Read reads one object under a functional constraint.
func (c *Client) Read(ctx context.Context, ref model.ObjectReference, fc model.FC) (model.Value, error) {
	var v model.Value
	err := c.call(ctx, &wire.Request{
		Service:   wire.ServiceRead,
		Reference: ref,
		FC:        fc,
	}, &v)
	return v, err
}

// Write writes one object under a functional constraint.
func (c *Client) Write(ctx context.Context, ref model.ObjectReference, fc model.FC, value model.Value) error {
	req := &wire.Request{
		Service:   wire.ServiceWrite,
		Reference: ref,
		FC:        fc,
	}
	if err := req.SetPayload(value); err != nil {
		return err
	}
	return c.call(ctx, req, nil)
}

// CreateDataSet creates a dataset with the given ordered entries.
func (c *Client) CreateDataSet(ctx context.Context, ref model.ObjectReference, entries []model.ObjectReference) error {
	req := &wire.Request{
		Service:   wire.ServiceCreateDataSet,
		Reference: ref,
	}
	if err := req.SetPayload(&wire.DataSetPayload{Entries: entries}); err != nil {
		return err
	}
	return c.call(ctx, req, nil)
}

// DeleteDataSet deletes a dataset.
func (c *Client) DeleteDataSet(ctx context.Context, ref model.ObjectReference) error {
	return c.call(ctx, &wire.Request{
		Service:   wire.ServiceDeleteDataSet,
		Reference: ref,
	}, nil)
}

// GetDataSetDirectory returns the member list and deletable flag.
func (c *Client) GetDataSetDirectory(ctx context.Context, ref model.ObjectReference) (*model.DataSet, error) {
	var p wire.DataSetPayload
	if err := c.call(ctx, &wire.Request{
		Service:   wire.ServiceGetDataSetDirectory,
		Reference: ref,
	}, &p); err != nil {
		return nil, err
	}
	return &model.DataSet{Reference: ref, Entries: p.Entries, Deletable: p.Deletable}, nil
}

// ReadDataSet reads all dataset entries in entry order.
func (c *Client) ReadDataSet(ctx context.Context, ref model.ObjectReference) (model.ValueCollection, error) {
	var list wire.ValueList
	if err := c.call(ctx, &wire.Request{
		Service:   wire.ServiceReadDataSet,
		Reference: ref,
	}, &list); err != nil {
		return nil, err
	}
	return list.Values, nil
}

// GetRCBValues reads every field of a report control block.
func (c *Client) GetRCBValues(ctx context.Context, ref model.ObjectReference) (*wire.RCBValues, error) {
	var v wire.RCBValues
	if err := c.call(ctx, &wire.Request{
		Service:   wire.ServiceGetRCBValues,
		Reference: ref,
	}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetRCBValues writes the non-nil fields of values in one request.
func (c *Client) SetRCBValues(ctx context.Context, ref model.ObjectReference, values *wire.RCBValues) error {
	req := &wire.Request{
		Service:   wire.ServiceSetRCBValues,
		Reference: ref,
	}
	if err := req.SetPayload(values); err != nil {
		return err
	}
	return c.call(ctx, req, nil)
}
