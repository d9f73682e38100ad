// Package model defines the client-side view of a substation device's
// object model.
//
// # Object Hierarchy
//
// Devices expose a four-level hierarchy that is discovered at runtime:
//
//	Server
//	└── Logical Device (simpleIOGenericIO)
//	    └── Logical Node (GGIO1)
//	        ├── Data Object (AnIn1)
//	        │   └── Data Attribute (mag) > (f)
//	        ├── DataSet (Events)
//	        ├── URCB (EventsRCB01)
//	        └── BRCB (EventsIndexed01)
//
// # Addressing
//
// Objects are addressed by ObjectReference, a string of the form
//
//	<LD>/<LN>.<DO>.<DA>...
//
// optionally suffixed with a functional constraint when used as a dataset
// member ("LD/GGIO1.AnIn1[MX]"). References are opaque; the package only
// validates them and builds child references.
//
// # Values
//
// Value is a self-describing, CBOR-encodable value. A slot holding a
// DataAccessError is a valid outcome of a read, not a failed call.
package model
