package recorder

import "time"

// Policy describes how one stream is recorded and where its segments go.
// It is built once per publish from the policy API response and never
// mutated afterwards. Empty optional fields mean "absent".
type Policy struct {
	FilenameTemplate    string
	SegmentLimitMinutes int64
	AutoRecord          bool
	UploadURL           string
	Hash                string
	Hash2               string
	Referer             string
	Title               string
	Comment             string
	Action              string
}

// SegmentDuration is the recorder segment length implied by the policy.
func (p Policy) SegmentDuration() time.Duration {
	return time.Duration(p.SegmentLimitMinutes) * time.Minute
}

// SegmentInfo describes one segment the media server just closed.
type SegmentInfo struct {
	End         time.Time
	Duration    time.Duration
	Number      int
	StoragePath string
	CurrentFile string
}

// Start is the wall-clock time the segment began.
func (s SegmentInfo) Start() time.Time {
	return s.End.Add(-s.Duration)
}

// RecordedFile is the temporary file the media server wrote.
func (s SegmentInfo) RecordedFile() string {
	return s.CurrentFile
}

// FetchOptions carries the optional hints sent to the policy API.
type FetchOptions struct {
	Title      string
	Comment    string
	TextAction string
}

// RecordParams is the segmented-recording request sent to the media server.
type RecordParams struct {
	Format          string
	Segmentation    string
	SegmentDuration time.Duration
	StartOnKeyFrame bool
	RecordData      bool
	OutputPath      string
}

const (
	FormatMP4         = "mp4"
	SegmentByDuration = "duration"
)

// NewRecordParams returns the parameters used for every policy-driven recording.
func NewRecordParams(p Policy, outputPath string) RecordParams {
	return RecordParams{
		Format:          FormatMP4,
		Segmentation:    SegmentByDuration,
		SegmentDuration: p.SegmentDuration(),
		StartOnKeyFrame: true,
		RecordData:      true,
		OutputPath:      outputPath,
	}
}

// DefaultPushApp is the destination application used when none is configured.
const DefaultPushApp = "live"

// PushTarget is where a published stream is relayed to.
type PushTarget struct {
	Host   string
	App    string
	Stream string
}

// URL is the RTMP address of the target.
func (t PushTarget) URL() string {
	return "rtmp://" + t.Host + "/" + t.App + "/" + t.Stream
}

// PushSession is a relay push the media server is running for one stream.
type PushSession struct {
	ID        string
	Target    PushTarget
	StartedAt time.Time
}
