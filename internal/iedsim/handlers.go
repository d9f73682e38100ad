package iedsim

import (
	"fmt"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// handleRequest serves one request for sess. The returned reports must be
// sent after the response.
func (s *Simulator) handleRequest(sess *session, req *wire.Request) (*wire.Response, []pushedReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[req.Service]++

	switch req.Service {
	case wire.ServiceGetServerDirectory:
		return s.handleServerDirectory(req), nil
	case wire.ServiceGetLogicalDeviceDirectory:
		return s.handleDeviceDirectory(req), nil
	case wire.ServiceGetLogicalNodeDirectory:
		return s.handleNodeDirectory(req), nil
	case wire.ServiceGetDataDirectory:
		return s.handleDataDirectory(req), nil
	case wire.ServiceRead:
		return s.handleRead(req), nil
	case wire.ServiceWrite:
		return s.handleWrite(req)
	case wire.ServiceCreateDataSet:
		return s.handleCreateDataSet(req), nil
	case wire.ServiceDeleteDataSet:
		return s.handleDeleteDataSet(req), nil
	case wire.ServiceGetDataSetDirectory:
		return s.handleDataSetDirectory(req), nil
	case wire.ServiceReadDataSet:
		return s.handleReadDataSet(req), nil
	case wire.ServiceGetRCBValues:
		return s.handleGetRCBValues(req), nil
	case wire.ServiceSetRCBValues:
		return s.handleSetRCBValues(sess, req)
	default:
		return errorResponse(req, wire.StatusUnsupported, "unsupported service"), nil
	}
}

func errorResponse(req *wire.Request, status wire.Status, format string, args ...any) *wire.Response {
	resp := &wire.Response{MessageID: req.MessageID, Status: status}
	_ = resp.SetPayload(&wire.ErrorPayload{Message: fmt.Sprintf(format, args...)})
	return resp
}

func successResponse(req *wire.Request, payload any) *wire.Response {
	resp := &wire.Response{MessageID: req.MessageID, Status: wire.StatusSuccess}
	if payload != nil {
		if err := resp.SetPayload(payload); err != nil {
			return errorResponse(req, wire.StatusInvalidPayload, "%v", err)
		}
	}
	return resp
}

func (s *Simulator) handleServerDirectory(req *wire.Request) *wire.Response {
	names := make([]string, len(s.devices))
	for i, ld := range s.devices {
		names[i] = ld.name
	}
	return successResponse(req, &wire.NameList{Names: names})
}

func (s *Simulator) handleDeviceDirectory(req *wire.Request) *wire.Response {
	ld := s.device(string(req.Reference))
	if ld == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no logical device %q", req.Reference)
	}
	names := make([]string, len(ld.nodes))
	for i, ln := range ld.nodes {
		names[i] = ln.name
	}
	return successResponse(req, &wire.NameList{Names: names})
}

func (s *Simulator) handleNodeDirectory(req *wire.Request) *wire.Response {
	p, err := parsePath(req.Reference)
	if err != nil || p.hasFC || len(p.rest) != 0 {
		return errorResponse(req, wire.StatusInvalidReference, "%q is not a logical node reference", req.Reference)
	}
	ln := s.logicalNode(p.ld, p.ln)
	if ln == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no logical node %q", req.Reference)
	}

	var names []string
	switch req.Class {
	case model.ClassDataObject:
		for _, o := range ln.objects {
			names = append(names, o.name)
		}
	case model.ClassDataSet:
		for _, ds := range ln.dataSets {
			names = append(names, ds.name)
		}
	case model.ClassURCB:
		for _, r := range ln.urcbs {
			names = append(names, r.name)
		}
	case model.ClassBRCB:
		for _, r := range ln.brcbs {
			names = append(names, r.name)
		}
	default:
		return errorResponse(req, wire.StatusUnsupported, "class %s not listed under a logical node", req.Class)
	}
	return successResponse(req, &wire.NameList{Names: names})
}

func (s *Simulator) handleDataDirectory(req *wire.Request) *wire.Response {
	o, _, ok := s.lookup(req.Reference)
	if !ok {
		return errorResponse(req, wire.StatusObjectNotFound, "no object %q", req.Reference)
	}
	return successResponse(req, &wire.NameList{Names: o.childNames()})
}

func (s *Simulator) handleRead(req *wire.Request) *wire.Response {
	if !req.FC.IsValid() {
		return errorResponse(req, wire.StatusInvalidReference, "invalid functional constraint %q", req.FC)
	}
	o, _, ok := s.lookup(req.Reference)
	if !ok {
		return errorResponse(req, wire.StatusObjectNotFound, "no object %q", req.Reference)
	}
	v, ok := o.valueFor(req.FC)
	if !ok {
		return errorResponse(req, wire.StatusObjectNotFound, "%q has no attributes under %s", req.Reference, req.FC)
	}
	return successResponse(req, v)
}

func (s *Simulator) handleWrite(req *wire.Request) (*wire.Response, []pushedReport) {
	var v model.Value
	if err := req.DecodePayload(&v); err != nil {
		return errorResponse(req, wire.StatusInvalidPayload, "value: %v", err), nil
	}
	o, _, ok := s.lookup(req.Reference)
	if !ok {
		return errorResponse(req, wire.StatusObjectNotFound, "no object %q", req.Reference), nil
	}
	if o.value == nil || o.fc != req.FC {
		return errorResponse(req, wire.StatusObjectNotFound, "no attribute %q under %s", req.Reference, req.FC), nil
	}
	if !req.FC.Access().CanWrite() {
		return errorResponse(req, wire.StatusAccessDenied, "%s attributes are read-only", req.FC), nil
	}
	if v.Type != o.value.Type {
		return errorResponse(req, wire.StatusTypeMismatch, "%q is %s, got %s", req.Reference, o.value.Type, v.Type), nil
	}
	return successResponse(req, nil), s.setValue(req.Reference, o, v)
}

func (s *Simulator) handleCreateDataSet(req *wire.Request) *wire.Response {
	var p wire.DataSetPayload
	if err := req.DecodePayload(&p); err != nil {
		return errorResponse(req, wire.StatusInvalidPayload, "dataset: %v", err)
	}
	if len(p.Entries) == 0 {
		return errorResponse(req, wire.StatusInvalidPayload, "dataset has no entries")
	}
	path, err := parsePath(req.Reference)
	if err != nil || path.hasFC || len(path.rest) != 1 {
		return errorResponse(req, wire.StatusInvalidReference, "%q is not a dataset reference", req.Reference)
	}
	ln := s.logicalNode(path.ld, path.ln)
	if ln == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no logical node %s/%s", path.ld, path.ln)
	}
	if ds, _ := ln.dataSet(path.rest[0]); ds != nil {
		return errorResponse(req, wire.StatusAlreadyExists, "dataset %q exists", req.Reference)
	}
	for _, e := range p.Entries {
		if _, ok := s.entryValue(e); !ok {
			return errorResponse(req, wire.StatusInvalidReference, "member %q does not resolve", e)
		}
	}
	ln.dataSets = append(ln.dataSets, &dataSet{
		name:      path.rest[0],
		entries:   append([]model.ObjectReference(nil), p.Entries...),
		deletable: true,
	})
	s.logger.Debug("iedsim: dataset created", "ref", req.Reference, "entries", len(p.Entries))
	return successResponse(req, nil)
}

func (s *Simulator) handleDeleteDataSet(req *wire.Request) *wire.Response {
	ln, ds, i := s.lookupDataSet(req.Reference)
	if ds == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no dataset %q", req.Reference)
	}
	if !ds.deletable {
		return errorResponse(req, wire.StatusNotDeletable, "dataset %q is fixed", req.Reference)
	}
	if r := s.enabledRCBUsing(req.Reference); r != nil {
		return errorResponse(req, wire.StatusRejected, "dataset %q is in use by %s", req.Reference, r.ref)
	}
	ln.dataSets = append(ln.dataSets[:i], ln.dataSets[i+1:]...)
	return successResponse(req, nil)
}

func (s *Simulator) handleDataSetDirectory(req *wire.Request) *wire.Response {
	_, ds, _ := s.lookupDataSet(req.Reference)
	if ds == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no dataset %q", req.Reference)
	}
	return successResponse(req, &wire.DataSetPayload{Entries: ds.entries, Deletable: ds.deletable})
}

func (s *Simulator) handleReadDataSet(req *wire.Request) *wire.Response {
	_, ds, _ := s.lookupDataSet(req.Reference)
	if ds == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no dataset %q", req.Reference)
	}
	return successResponse(req, &wire.ValueList{Values: s.dataSetValues(ds)})
}

func (s *Simulator) dataSetValues(ds *dataSet) []model.Value {
	values := make([]model.Value, len(ds.entries))
	for i, e := range ds.entries {
		v, ok := s.entryValue(e)
		if !ok {
			v = model.ErrorValue(model.AccessErrorObjectNonExistent)
		}
		values[i] = v
	}
	return values
}

func (s *Simulator) handleGetRCBValues(req *wire.Request) *wire.Response {
	r := s.lookupRCB(req.Reference)
	if r == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no report control block %q", req.Reference)
	}
	return successResponse(req, r.values())
}

func (s *Simulator) handleSetRCBValues(sess *session, req *wire.Request) (*wire.Response, []pushedReport) {
	r := s.lookupRCB(req.Reference)
	if r == nil {
		return errorResponse(req, wire.StatusObjectNotFound, "no report control block %q", req.Reference), nil
	}
	var v wire.RCBValues
	if err := req.DecodePayload(&v); err != nil {
		return errorResponse(req, wire.StatusInvalidPayload, "rcb values: %v", err), nil
	}
	if v.IsEmpty() {
		return errorResponse(req, wire.StatusInvalidPayload, "no fields to write"), nil
	}

	status, msg, reports := s.writeRCB(sess, r, &v)
	if status != wire.StatusSuccess {
		s.logger.Debug("iedsim: rcb write refused", "rcb", r.ref, "status", status, "reason", msg)
		return errorResponse(req, status, "%s", msg), nil
	}
	return successResponse(req, nil), reports
}
