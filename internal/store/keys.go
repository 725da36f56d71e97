package store

// Key builders for the partition/sort key scheme. The layout mirrors the
// original single-table design so existing data remains addressable:
//
//	Image metadata      IMG#{imageID}        META#{imageID}
//	Processing result   IMG#{imageID}        RESULT#{requestID}
//	Combined result     IMG#{imageID}        RESULT#COMBINED
//	Pipeline status     PROCESSING#{runID}   STATUS
//	Monitoring session  STATION#{stationID}  SESSION#{sessionID}
//	Capture result      SESSION#{sessionID}  CAPTURE#{captureID}

const (
	// CombinedResultSK is the fixed sort key under which an image's combined
	// result is written. There is at most one per image; a rerun overwrites it.
	CombinedResultSK = "RESULT#COMBINED"

	// RunStatusSK is the fixed sort key for a run's status record.
	RunStatusSK = "STATUS"

	// StationPKPrefix is the partition key prefix shared by all monitoring
	// sessions, used for cross-station scans.
	StationPKPrefix = "STATION#"
)

// ImagePK returns the partition key for all records belonging to an image.
func ImagePK(imageID string) string {
	return "IMG#" + imageID
}

// ImageMetaSK returns the sort key for an image's metadata record.
func ImageMetaSK(imageID string) string {
	return "META#" + imageID
}

// ProcessingResultSK returns the sort key for one inference result.
func ProcessingResultSK(requestID string) string {
	return "RESULT#" + requestID
}

// RunStatusPK returns the partition key for a pipeline run's status record.
func RunStatusPK(runID string) string {
	return "PROCESSING#" + runID
}

// StationPK returns the partition key for a station's monitoring sessions.
func StationPK(stationID string) string {
	return StationPKPrefix + stationID
}

// SessionSK returns the sort key for a monitoring session record.
func SessionSK(sessionID string) string {
	return "SESSION#" + sessionID
}

// SessionPK returns the partition key for a session's capture results.
func SessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// CaptureSK returns the sort key for a capture result record.
func CaptureSK(captureID string) string {
	return "CAPTURE#" + captureID
}
