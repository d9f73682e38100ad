package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/iedlink/iedlink-go/pkg/model"
)

// DataSets manages datasets on a connected device. Datasets are never
// modified in place: replace one by deleting and re-creating it.
//
// Layouts learned through Create and Directory are cached for the
// lifetime of the connection and used to annotate report events.
type DataSets struct {
	s *Session
}

// DataSets returns the dataset manager of the session.
func (s *Session) DataSets() *DataSets {
	return &DataSets{s: s}
}

// Create creates a dataset with the given ordered entries. Entries may
// carry a functional constraint suffix (LD/GGIO1.AnIn1[MX]).
func (d *DataSets) Create(ctx context.Context, ref model.ObjectReference, entries []model.ObjectReference) error {
	if err := validateDataSetRef(ref); err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: dataset %s has no entries", model.ErrInvalidReference, ref)
	}
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}

	c, err := d.s.exchange()
	if err != nil {
		return err
	}
	if err := c.CreateDataSet(ctx, ref, entries); err != nil {
		return err
	}

	d.s.storeLayout(ref, entries)
	d.s.logger.Debug("dataset created", "ref", string(ref), "entries", len(entries))
	return nil
}

// Read returns the current values of all entries in entry order.
func (d *DataSets) Read(ctx context.Context, ref model.ObjectReference) (model.ValueCollection, error) {
	if err := validateDataSetRef(ref); err != nil {
		return nil, err
	}
	c, err := d.s.exchange()
	if err != nil {
		return nil, err
	}

	values, err := c.ReadDataSet(ctx, ref)
	if err != nil {
		return nil, err
	}
	if entries, ok := d.s.layout(ref); ok && len(entries) != len(values) {
		d.s.logger.Warn("dataset read returned unexpected value count",
			"ref", string(ref), "values", len(values), "entries", len(entries))
	}
	return values, nil
}

// Delete deletes a dataset.
func (d *DataSets) Delete(ctx context.Context, ref model.ObjectReference) error {
	if err := validateDataSetRef(ref); err != nil {
		return err
	}
	c, err := d.s.exchange()
	if err != nil {
		return err
	}

	err = c.DeleteDataSet(ctx, ref)
	if err == nil || errors.Is(err, model.ErrObjectNotFound) {
		d.s.evictLayout(ref)
	}
	return err
}

// Directory returns the member list and deletable flag of a dataset.
func (d *DataSets) Directory(ctx context.Context, ref model.ObjectReference) (*model.DataSet, error) {
	if err := validateDataSetRef(ref); err != nil {
		return nil, err
	}
	c, err := d.s.exchange()
	if err != nil {
		return nil, err
	}

	ds, err := c.GetDataSetDirectory(ctx, ref)
	if err != nil {
		return nil, err
	}
	d.s.storeLayout(ref, ds.Entries)
	return ds, nil
}

func validateDataSetRef(ref model.ObjectReference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if _, _, hasFC := ref.SplitFC(); hasFC {
		return fmt.Errorf("%w: dataset reference %q has a functional constraint", model.ErrInvalidReference, ref)
	}
	return nil
}

func (s *Session) storeLayout(ref model.ObjectReference, entries []model.ObjectReference) {
	s.layoutMu.Lock()
	defer s.layoutMu.Unlock()
	s.layouts[ref] = append([]model.ObjectReference(nil), entries...)
}

func (s *Session) evictLayout(ref model.ObjectReference) {
	s.layoutMu.Lock()
	defer s.layoutMu.Unlock()
	delete(s.layouts, ref)
}

func (s *Session) clearLayouts() {
	s.layoutMu.Lock()
	defer s.layoutMu.Unlock()
	s.layouts = make(map[model.ObjectReference][]model.ObjectReference)
}

// layout returns the cached entries of a dataset. It is the report
// dispatcher's LayoutFunc.
func (s *Session) layout(ref model.ObjectReference) ([]model.ObjectReference, bool) {
	s.layoutMu.RLock()
	defer s.layoutMu.RUnlock()
	entries, ok := s.layouts[ref]
	return entries, ok
}
