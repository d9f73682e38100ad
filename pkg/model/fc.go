package model

// FC is a functional constraint. It qualifies which class of data
// attributes an access addresses.
type FC string

const (
	FCST FC = "ST" // status information
	FCMX FC = "MX" // measurands
	FCSP FC = "SP" // setpoints
	FCSV FC = "SV" // substitution
	FCCF FC = "CF" // configuration
	FCDC FC = "DC" // description
	FCSG FC = "SG" // setting group
	FCSE FC = "SE" // setting group editable
	FCSR FC = "SR" // service response
	FCOR FC = "OR" // operate received
	FCBL FC = "BL" // blocking
	FCEX FC = "EX" // extended definition
	FCCO FC = "CO" // control
	FCRP FC = "RP" // unbuffered report control
	FCBR FC = "BR" // buffered report control
)

var knownFCs = map[FC]struct{}{
	FCST: {}, FCMX: {}, FCSP: {}, FCSV: {}, FCCF: {}, FCDC: {}, FCSG: {}, FCSE: {},
	FCSR: {}, FCOR: {}, FCBL: {}, FCEX: {}, FCCO: {}, FCRP: {}, FCBR: {},
}

// IsValid reports whether fc is a known functional constraint.
func (fc FC) IsValid() bool {
	_, ok := knownFCs[fc]
	return ok
}

// String returns the two-letter constraint.
func (fc FC) String() string {
	return string(fc)
}
