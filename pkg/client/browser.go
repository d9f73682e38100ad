package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iedlink/iedlink-go/pkg/interaction"
	"github.com/iedlink/iedlink-go/pkg/model"
)

// ErrInvalidCategory is returned by Children for a class that is not
// listed under a logical node.
var ErrInvalidCategory = errors.New("invalid logical node directory category")

// Browser discovers the object model of a connected device.
type Browser struct {
	s *Session
}

// Browser returns the model browser of the session.
func (s *Session) Browser() *Browser {
	return &Browser{s: s}
}

// LogicalDevices lists the logical devices in server order.
func (b *Browser) LogicalDevices(ctx context.Context) ([]string, error) {
	c, err := b.s.exchange()
	if err != nil {
		return nil, err
	}
	return c.GetServerDirectory(ctx)
}

// LogicalNodes lists the logical nodes of ld in server order.
func (b *Browser) LogicalNodes(ctx context.Context, ld string) ([]string, error) {
	if ld == "" || strings.ContainsAny(ld, "/.[] ") {
		return nil, fmt.Errorf("%w: bad logical device name %q", model.ErrInvalidReference, ld)
	}
	c, err := b.s.exchange()
	if err != nil {
		return nil, err
	}
	return c.GetLogicalDeviceDirectory(ctx, ld)
}

// Children lists the objects of one category under the logical node ln.
// Category is one of ClassDataObject, ClassDataSet, ClassURCB and
// ClassBRCB.
func (b *Browser) Children(ctx context.Context, ln model.ObjectReference, category model.NodeClass) ([]model.Node, error) {
	switch category {
	case model.ClassDataObject, model.ClassDataSet, model.ClassURCB, model.ClassBRCB:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}
	if err := ln.Validate(); err != nil {
		return nil, err
	}
	c, err := b.s.exchange()
	if err != nil {
		return nil, err
	}

	names, err := c.GetLogicalNodeDirectory(ctx, ln, category)
	if err != nil {
		return nil, err
	}

	nodes := make([]model.Node, 0, len(names))
	var errs []error
	for _, name := range names {
		ref, err := childRef(ln, category, name)
		if err != nil {
			errs = append(errs, err)
			nodes = append(nodes, model.Node{Name: name, Class: category, Err: err})
			continue
		}
		nodes = append(nodes, model.Node{Name: name, Reference: ref, Class: category})
	}
	return nodes, errors.Join(errs...)
}

// childRef builds the reference of a logical node directory entry.
// Report control blocks live under their functional constraint
// (LD/LN.RP.name, LD/LN.BR.name).
func childRef(ln model.ObjectReference, category model.NodeClass, name string) (model.ObjectReference, error) {
	switch category {
	case model.ClassURCB:
		return rcbRef(ln, model.FCRP, name)
	case model.ClassBRCB:
		return rcbRef(ln, model.FCBR, name)
	default:
		return ln.Child(name)
	}
}

func rcbRef(ln model.ObjectReference, fc model.FC, name string) (model.ObjectReference, error) {
	parent, err := ln.Child(string(fc))
	if err != nil {
		return "", err
	}
	return parent.Child(name)
}

// DataDirectory lists the direct children of a data object or attribute.
// A leaf yields an empty list.
func (b *Browser) DataDirectory(ctx context.Context, ref model.ObjectReference) ([]string, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	c, err := b.s.exchange()
	if err != nil {
		return nil, err
	}
	return c.GetDataDirectory(ctx, ref)
}

// DataAttributes returns the attribute tree below the data object ref.
//
// The tree is built breadth-first from an explicit worklist, so children
// keep server order. A node whose children could not be listed carries the
// reason in its Err field and traversal continues with its siblings; the
// per-node errors are returned joined alongside the partial tree. Nodes
// deeper than Config.MaxBrowseDepth are not expanded (model.ErrModelTooDeep).
// Losing the session or the context aborts the traversal.
func (b *Browser) DataAttributes(ctx context.Context, ref model.ObjectReference) (*model.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	c, err := b.s.exchange()
	if err != nil {
		return nil, err
	}

	root := &model.Node{Name: lastSegment(ref), Reference: ref, Class: model.ClassDataObject}
	maxDepth := b.s.config.MaxBrowseDepth

	type item struct {
		node  *model.Node
		depth int
	}
	work := []item{{root, 0}}
	var errs []error

	for len(work) > 0 {
		it := work[0]
		work = work[1:]

		names, err := c.GetDataDirectory(ctx, it.node.Reference)
		if err != nil {
			if it.node == root {
				return nil, err
			}
			if isFatal(err) {
				return root, errors.Join(append(errs, err)...)
			}
			it.node.Err = err
			errs = append(errs, fmt.Errorf("%s: %w", it.node.Reference, err))
			continue
		}
		if len(names) == 0 {
			continue
		}
		if it.depth >= maxDepth {
			it.node.Err = fmt.Errorf("%w: %d levels below %s", model.ErrModelTooDeep, maxDepth, ref)
			errs = append(errs, it.node.Err)
			continue
		}

		for _, name := range names {
			childRef, err := it.node.Reference.Child(name)
			if err != nil {
				bad := &model.Node{Name: name, Class: model.ClassDataAttribute, Err: err}
				it.node.Children = append(it.node.Children, bad)
				errs = append(errs, err)
				continue
			}
			child := &model.Node{Name: name, Reference: childRef, Class: model.ClassDataAttribute}
			it.node.Children = append(it.node.Children, child)
			work = append(work, item{child, it.depth + 1})
		}
	}
	return root, errors.Join(errs...)
}

// isFatal reports whether err ends a multi-request walk: the session or
// the caller's context is gone, or the device stopped answering.
func isFatal(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, interaction.ErrRequestTimeout) ||
		errors.Is(err, interaction.ErrClientClosed)
}

func lastSegment(ref model.ObjectReference) string {
	s := string(ref)
	if i := strings.LastIndexAny(s, "./"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Discover walks the whole device: logical devices, logical nodes, data
// objects with their attribute trees, datasets with their members, and
// report control blocks. Per-object failures are collected and returned
// joined with the partial model. Losing the session or the context stops
// the walk.
func (b *Browser) Discover(ctx context.Context) (*model.ServerModel, error) {
	lds, err := b.LogicalDevices(ctx)
	if err != nil {
		return nil, err
	}

	sm := &model.ServerModel{}
	var errs []error

	for _, ldName := range lds {
		ld := &model.LogicalDevice{Name: ldName}
		sm.LogicalDevices = append(sm.LogicalDevices, ld)

		lns, err := b.LogicalNodes(ctx, ldName)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ldName, err))
			if isFatal(err) {
				return sm, errors.Join(errs...)
			}
			continue
		}

		for _, lnName := range lns {
			lnRef, err := model.LogicalNodeRef(ldName, lnName)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			ln := &model.LogicalNode{Name: lnName, Reference: lnRef}
			ld.LogicalNodes = append(ld.LogicalNodes, ln)

			partial, err := b.discoverNode(ctx, ln)
			errs = append(errs, partial...)
			if err != nil {
				return sm, errors.Join(append(errs, err)...)
			}
		}
	}
	return sm, errors.Join(errs...)
}

// discoverNode fills ln. It returns the per-object errors and, separately,
// an error that must stop the walk.
func (b *Browser) discoverNode(ctx context.Context, ln *model.LogicalNode) ([]error, error) {
	var errs []error
	// record keeps err and reports whether it is fatal.
	record := func(err error) bool {
		if isFatal(err) {
			return true
		}
		errs = append(errs, err)
		return false
	}

	dos, err := b.Children(ctx, ln.Reference, model.ClassDataObject)
	if err != nil && record(err) {
		return errs, err
	}
	for _, do := range dos {
		if do.Err != nil {
			continue
		}
		tree, err := b.DataAttributes(ctx, do.Reference)
		if tree == nil {
			tree = &model.Node{Name: do.Name, Reference: do.Reference, Class: model.ClassDataObject, Err: err}
		}
		ln.DataObjects = append(ln.DataObjects, tree)
		if err != nil && record(err) {
			return errs, err
		}
	}

	sets, err := b.Children(ctx, ln.Reference, model.ClassDataSet)
	if err != nil && record(err) {
		return errs, err
	}
	ds := b.s.DataSets()
	for _, set := range sets {
		if set.Err != nil {
			continue
		}
		dir, err := ds.Directory(ctx, set.Reference)
		if err != nil {
			if record(fmt.Errorf("%s: %w", set.Reference, err)) {
				return errs, err
			}
			dir = &model.DataSet{Reference: set.Reference}
		}
		ln.DataSets = append(ln.DataSets, dir)
	}

	for _, class := range []model.NodeClass{model.ClassURCB, model.ClassBRCB} {
		rcbs, err := b.Children(ctx, ln.Reference, class)
		if err != nil && record(err) {
			return errs, err
		}
		for _, rcb := range rcbs {
			if rcb.Err != nil {
				continue
			}
			if class == model.ClassURCB {
				ln.URCBs = append(ln.URCBs, rcb.Reference)
			} else {
				ln.BRCBs = append(ln.BRCBs, rcb.Reference)
			}
		}
	}
	return errs, nil
}
