package model

// Access is the set of operations a client may perform on attributes of
// one functional constraint.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadOnly  = AccessRead
	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead reports whether reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite reports whether writing with the Write service is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// String returns "R", "W", "RW" or "-".
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Access returns the default client access for attributes under fc.
// Process data (ST, MX) and operate state are read-only; control blocks
// (RP, BR) and controls (CO) change through their own services, not Write.
func (fc FC) Access() Access {
	switch fc {
	case FCSP, FCSV, FCCF, FCDC, FCSE, FCBL:
		return AccessReadWrite
	case FCST, FCMX, FCSG, FCSR, FCOR, FCEX, FCRP, FCBR:
		return AccessReadOnly
	default:
		return 0
	}
}
