// Package iedsim is an in-memory device that serves the wire protocol.
//
// A Simulator holds a model of logical devices, logical nodes, data
// objects and typed data attributes, plus datasets and report control
// blocks. It serves any number of connections, over TCP through
// transport.Server (see Handler) or over an in-memory net.Pipe (see Pipe).
//
// Enabled report control blocks push reports to the client that enabled
// them: a general interrogation when enabled with the GI trigger or on an
// explicit GI write, a data change when UpdateValue or a client Write
// touches a dataset member, and integrity reports when an integrity period
// is set.
//
// NewSimpleIO builds the sample generic IO device used by the command line
// client's simulate mode.
package iedsim
