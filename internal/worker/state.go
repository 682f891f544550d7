package worker

// State is the main loop's position in the per-job cycle.
type State int32

// Loop states.
const (
	StateIdle State = iota
	StateClaiming
	StateProcessing
	StateRunningCrawl
	StatePublishingResult
	StateUploading
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateClaiming:
		return "CLAIMING"
	case StateProcessing:
		return "PROCESSING"
	case StateRunningCrawl:
		return "RUNNING_CRAWL"
	case StatePublishingResult:
		return "PUBLISHING_RESULT"
	case StateUploading:
		return "UPLOADING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}
