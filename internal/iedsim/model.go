package iedsim

import (
	"fmt"
	"strings"

	"github.com/iedlink/iedlink-go/pkg/model"
)

// object is a data object or data attribute. Leaves carry a value and a
// functional constraint.
type object struct {
	name     string
	fc       model.FC
	value    *model.Value
	children []*object
}

func (o *object) child(name string) *object {
	for _, c := range o.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (o *object) childNames() []string {
	names := make([]string, len(o.children))
	for i, c := range o.children {
		names[i] = c.name
	}
	return names
}

// valueFor builds the value of o restricted to attributes under fc:
// the leaf value itself, or a structure of the matching children in
// model order.
func (o *object) valueFor(fc model.FC) (model.Value, bool) {
	if o.value != nil {
		if o.fc != fc {
			return model.Value{}, false
		}
		return *o.value, true
	}
	var elems []model.Value
	for _, c := range o.children {
		if v, ok := c.valueFor(fc); ok {
			elems = append(elems, v)
		}
	}
	if len(elems) == 0 {
		return model.Value{}, false
	}
	return model.StructValue(elems...), true
}

type dataSet struct {
	name      string
	entries   []model.ObjectReference
	deletable bool
}

type logicalNode struct {
	name     string
	objects  []*object
	dataSets []*dataSet
	urcbs    []*rcb
	brcbs    []*rcb
}

func (ln *logicalNode) object(name string) *object {
	for _, o := range ln.objects {
		if o.name == name {
			return o
		}
	}
	return nil
}

func (ln *logicalNode) dataSet(name string) (*dataSet, int) {
	for i, ds := range ln.dataSets {
		if ds.name == name {
			return ds, i
		}
	}
	return nil, -1
}

func (ln *logicalNode) rcb(fc model.FC, name string) *rcb {
	list := ln.urcbs
	if fc == model.FCBR {
		list = ln.brcbs
	}
	for _, r := range list {
		if r.name == name {
			return r
		}
	}
	return nil
}

type logicalDevice struct {
	name  string
	nodes []*logicalNode
}

func (ld *logicalDevice) node(name string) *logicalNode {
	for _, ln := range ld.nodes {
		if ln.name == name {
			return ln
		}
	}
	return nil
}

// path is a parsed object reference.
type path struct {
	ld, ln string
	rest   []string
	fc     model.FC
	hasFC  bool
}

func parsePath(ref model.ObjectReference) (path, error) {
	base, fc, hasFC := ref.SplitFC()
	ld, rest, ok := strings.Cut(string(base), "/")
	if !ok || ld == "" || rest == "" {
		return path{}, fmt.Errorf("bad reference %q", ref)
	}
	segs := strings.Split(rest, ".")
	for _, s := range segs {
		if s == "" {
			return path{}, fmt.Errorf("bad reference %q", ref)
		}
	}
	return path{ld: ld, ln: segs[0], rest: segs[1:], fc: fc, hasFC: hasFC}, nil
}

func (s *Simulator) device(name string) *logicalDevice {
	for _, ld := range s.devices {
		if ld.name == name {
			return ld
		}
	}
	return nil
}

func (s *Simulator) logicalNode(ldName, lnName string) *logicalNode {
	ld := s.device(ldName)
	if ld == nil {
		return nil
	}
	return ld.node(lnName)
}

// lookup resolves a data object or attribute reference. Callers hold mu.
func (s *Simulator) lookup(ref model.ObjectReference) (*object, path, bool) {
	p, err := parsePath(ref)
	if err != nil || len(p.rest) == 0 {
		return nil, p, false
	}
	ln := s.logicalNode(p.ld, p.ln)
	if ln == nil {
		return nil, p, false
	}
	o := ln.object(p.rest[0])
	for _, name := range p.rest[1:] {
		if o == nil {
			break
		}
		o = o.child(name)
	}
	return o, p, o != nil
}

// entryValue resolves a dataset member. Members without a functional
// constraint must name a leaf.
func (s *Simulator) entryValue(entry model.ObjectReference) (model.Value, bool) {
	o, p, ok := s.lookup(entry)
	if !ok {
		return model.Value{}, false
	}
	if !p.hasFC {
		if o.value == nil {
			return model.Value{}, false
		}
		return *o.value, true
	}
	return o.valueFor(p.fc)
}

// ensureNode returns the logical node, creating the path to it.
func (s *Simulator) ensureNode(ldName, lnName string) *logicalNode {
	ld := s.device(ldName)
	if ld == nil {
		ld = &logicalDevice{name: ldName}
		s.devices = append(s.devices, ld)
	}
	ln := ld.node(lnName)
	if ln == nil {
		ln = &logicalNode{name: lnName}
		ld.nodes = append(ld.nodes, ln)
	}
	return ln
}

// AddDataAttribute adds a leaf attribute, creating its logical device,
// logical node and parent objects as needed.
func (s *Simulator) AddDataAttribute(ref model.ObjectReference, fc model.FC, value model.Value) error {
	p, err := parsePath(ref)
	if err != nil {
		return err
	}
	if p.hasFC || len(p.rest) < 2 {
		return fmt.Errorf("attribute reference %q needs <LD>/<LN>.<DO>.<DA>", ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ln := s.ensureNode(p.ld, p.ln)
	o := ln.object(p.rest[0])
	if o == nil {
		o = &object{name: p.rest[0]}
		ln.objects = append(ln.objects, o)
	}
	for _, name := range p.rest[1:] {
		c := o.child(name)
		if c == nil {
			if o.value != nil {
				return fmt.Errorf("%q: %s is a leaf", ref, o.name)
			}
			c = &object{name: name}
			o.children = append(o.children, c)
		}
		o = c
	}
	if len(o.children) > 0 {
		return fmt.Errorf("%q is not a leaf", ref)
	}
	v := value
	o.fc = fc
	o.value = &v
	return nil
}

// AddDataSet adds a dataset. The reference is <LD>/<LN>.<name>.
func (s *Simulator) AddDataSet(ref model.ObjectReference, entries []model.ObjectReference, deletable bool) error {
	p, err := parsePath(ref)
	if err != nil {
		return err
	}
	if len(p.rest) != 1 {
		return fmt.Errorf("dataset reference %q needs <LD>/<LN>.<name>", ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ln := s.logicalNode(p.ld, p.ln)
	if ln == nil {
		return fmt.Errorf("%q: no logical node %s/%s", ref, p.ld, p.ln)
	}
	if ds, _ := ln.dataSet(p.rest[0]); ds != nil {
		return fmt.Errorf("%q already exists", ref)
	}
	ln.dataSets = append(ln.dataSets, &dataSet{
		name:      p.rest[0],
		entries:   append([]model.ObjectReference(nil), entries...),
		deletable: deletable,
	})
	return nil
}

// RCBOptions describes a report control block added with AddRCB.
type RCBOptions struct {
	Buffered bool
	ReportID string
	DataSet  model.ObjectReference
	ConfRev  uint32
}

// AddRCB adds a report control block to the logical node ln. Its
// reference is ln + ".RP." + name (".BR." when buffered).
func (s *Simulator) AddRCB(ln model.ObjectReference, name string, opts RCBOptions) (model.ObjectReference, error) {
	p, err := parsePath(ln)
	if err != nil {
		return "", err
	}
	if len(p.rest) != 0 {
		return "", fmt.Errorf("%q is not a logical node reference", ln)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.logicalNode(p.ld, p.ln)
	if node == nil {
		return "", fmt.Errorf("no logical node %q", ln)
	}

	fc := model.FCRP
	if opts.Buffered {
		fc = model.FCBR
	}
	ref := model.ObjectReference(string(ln) + "." + string(fc) + "." + name)
	r := &rcb{
		name:     name,
		ref:      ref,
		buffered: opts.Buffered,
		reportID: opts.ReportID,
		dataSet:  opts.DataSet,
		confRev:  opts.ConfRev,
	}
	if opts.Buffered {
		node.brcbs = append(node.brcbs, r)
	} else {
		node.urcbs = append(node.urcbs, r)
	}
	return ref, nil
}

// lookupDataSet resolves <LD>/<LN>.<name>. Callers hold mu.
func (s *Simulator) lookupDataSet(ref model.ObjectReference) (*logicalNode, *dataSet, int) {
	p, err := parsePath(ref)
	if err != nil || p.hasFC || len(p.rest) != 1 {
		return nil, nil, -1
	}
	ln := s.logicalNode(p.ld, p.ln)
	if ln == nil {
		return nil, nil, -1
	}
	ds, i := ln.dataSet(p.rest[0])
	return ln, ds, i
}

// lookupRCB resolves <LD>/<LN>.RP.<name> and <LD>/<LN>.BR.<name>.
// Callers hold mu.
func (s *Simulator) lookupRCB(ref model.ObjectReference) *rcb {
	p, err := parsePath(ref)
	if err != nil || p.hasFC || len(p.rest) != 2 {
		return nil
	}
	fc := model.FC(p.rest[0])
	if fc != model.FCRP && fc != model.FCBR {
		return nil
	}
	ln := s.logicalNode(p.ld, p.ln)
	if ln == nil {
		return nil
	}
	return ln.rcb(fc, p.rest[1])
}
