package wire

// Service identifies the abstract service a request invokes.
type Service uint8

const (
	// ServiceGetServerDirectory lists the logical devices of the server.
	ServiceGetServerDirectory Service = 1

	// ServiceGetLogicalDeviceDirectory lists the logical nodes of a device.
	ServiceGetLogicalDeviceDirectory Service = 2

	// ServiceGetLogicalNodeDirectory lists the objects of one class under a
	// logical node.
	ServiceGetLogicalNodeDirectory Service = 3

	// ServiceGetDataDirectory lists the direct children of a data object
	// or structured data attribute.
	ServiceGetDataDirectory Service = 4

	// ServiceRead reads one object under a functional constraint.
	ServiceRead Service = 5

	// ServiceWrite writes one object under a functional constraint.
	ServiceWrite Service = 6

	// ServiceCreateDataSet creates a dataset from an ordered entry list.
	ServiceCreateDataSet Service = 7

	// ServiceDeleteDataSet deletes a dataset.
	ServiceDeleteDataSet Service = 8

	// ServiceGetDataSetDirectory returns the entries of a dataset.
	ServiceGetDataSetDirectory Service = 9

	// ServiceReadDataSet reads all entries of a dataset.
	ServiceReadDataSet Service = 10

	// ServiceGetRCBValues reads a report control block.
	ServiceGetRCBValues Service = 11

	// ServiceSetRCBValues writes a subset of report control block fields.
	ServiceSetRCBValues Service = 12
)

// String returns the service name.
func (s Service) String() string {
	switch s {
	case ServiceGetServerDirectory:
		return "GetServerDirectory"
	case ServiceGetLogicalDeviceDirectory:
		return "GetLogicalDeviceDirectory"
	case ServiceGetLogicalNodeDirectory:
		return "GetLogicalNodeDirectory"
	case ServiceGetDataDirectory:
		return "GetDataDirectory"
	case ServiceRead:
		return "Read"
	case ServiceWrite:
		return "Write"
	case ServiceCreateDataSet:
		return "CreateDataSet"
	case ServiceDeleteDataSet:
		return "DeleteDataSet"
	case ServiceGetDataSetDirectory:
		return "GetDataSetDirectory"
	case ServiceReadDataSet:
		return "ReadDataSet"
	case ServiceGetRCBValues:
		return "GetRCBValues"
	case ServiceSetRCBValues:
		return "SetRCBValues"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the service is known.
func (s Service) IsValid() bool {
	return s >= ServiceGetServerDirectory && s <= ServiceSetRCBValues
}
