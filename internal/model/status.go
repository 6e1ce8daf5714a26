package model

// ProcessingStatus is the server-side state of an import job, keyed by the
// four-letter code the data service returns in processing_status.
type ProcessingStatus string

const (
	StatusSubmitted  ProcessingStatus = "SUBM"
	StatusProcessing ProcessingStatus = "PROC"
	StatusCompleted  ProcessingStatus = "COMP"
	StatusFailed     ProcessingStatus = "FAIL"
	StatusCanceled   ProcessingStatus = "CANC"
	StatusTerminated ProcessingStatus = "TERM"
	StatusTimedOut   ProcessingStatus = "TIME"
)

var statusLabels = map[ProcessingStatus]string{
	StatusSubmitted:  "Submitted",
	StatusProcessing: "Processing",
	StatusCompleted:  "Completed",
	StatusFailed:     "Failed",
	StatusCanceled:   "Canceled",
	StatusTerminated: "Terminated",
	StatusTimedOut:   "Timed Out",
}

// ParseStatus maps a wire code to a known status.
func ParseStatus(code string) (ProcessingStatus, bool) {
	s := ProcessingStatus(code)
	_, ok := statusLabels[s]
	return s, ok
}

// Label returns the human-readable name, or the raw code if unknown.
func (s ProcessingStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsTerminal reports whether no further transition can occur.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusTerminated, StatusTimedOut:
		return true
	}
	return false
}

func (s ProcessingStatus) String() string { return s.Label() }
