package constant

type JobStatus string

const (
	JobStatusPending     JobStatus = "PENDING"
	JobStatusUploading   JobStatus = "UPLOADING"
	JobStatusGenerating  JobStatus = "GENERATING"
	JobStatusDownloading JobStatus = "DOWNLOADING"
	JobStatusProcessing  JobStatus = "PROCESSING"
	JobStatusCompleted   JobStatus = "COMPLETED"
	JobStatusFailed      JobStatus = "FAILED"
)

// statusRank orders the active states. FAILED compares above every active
// state so a failed record can never move back to an earlier one.
var statusRank = map[JobStatus]int{
	JobStatusPending:     0,
	JobStatusUploading:   1,
	JobStatusGenerating:  2,
	JobStatusDownloading: 3,
	JobStatusProcessing:  4,
	JobStatusCompleted:   5,
	JobStatusFailed:      5,
}

func (s JobStatus) Rank() int {
	return statusRank[s]
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) String() string {
	return string(s)
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

var AspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "21:9"}

var Durations = []string{"5s", "10s"}

var Resolutions = []string{"720p", "540p"}

var Regions = []string{"us-west-2", "us-east-1", "eu-west-1"}
