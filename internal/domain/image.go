package domain

// AnalysisStatus is the state of an image's damage analysis. It only moves
// forward: pending -> processing -> completed | failed.
type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s AnalysisStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// BoundingBox locates a damage region in image pixel coordinates.
type BoundingBox struct {
	X      float64 `dynamodbav:"x" json:"x"`
	Y      float64 `dynamodbav:"y" json:"y"`
	Width  float64 `dynamodbav:"width" json:"width"`
	Height float64 `dynamodbav:"height" json:"height"`
}

// Damage is one normalized detection result.
type Damage struct {
	Type        string       `dynamodbav:"type" json:"type"`
	Severity    string       `dynamodbav:"severity" json:"severity"`
	Location    string       `dynamodbav:"location" json:"location"`
	Confidence  float64      `dynamodbav:"confidence" json:"confidence"`
	BoundingBox *BoundingBox `dynamodbav:"boundingBox,omitempty" json:"boundingBox,omitempty"`
}

// DamageAnalysis is the analysis state embedded in an Image record.
type DamageAnalysis struct {
	Status      AnalysisStatus `dynamodbav:"status" json:"status"`
	Damages     []Damage       `dynamodbav:"damages" json:"damages"`
	ProcessedAt int64          `dynamodbav:"processedAt,omitempty" json:"processedAt,omitempty"`
}

// Image is an uploaded inspection photo and its analysis. The object key is
// stored under the legacy "s3Key" attribute.
type Image struct {
	ImageID           string         `dynamodbav:"imageId" json:"imageId"`
	SessionID         string         `dynamodbav:"sessionId" json:"sessionId"`
	ImageURL          string         `dynamodbav:"imageUrl" json:"imageUrl"`
	ObjectKey         string         `dynamodbav:"s3Key" json:"objectKey"`
	ProcessedImageURL string         `dynamodbav:"processedImageUrl,omitempty" json:"processedImageUrl,omitempty"`
	Analysis          DamageAnalysis `dynamodbav:"damageAnalysis" json:"damageAnalysis"`
	CreatedAt         int64          `dynamodbav:"createdAt" json:"createdAt"`
}

// NewPendingAnalysis returns the analysis state of a freshly confirmed upload.
func NewPendingAnalysis() DamageAnalysis {
	return DamageAnalysis{Status: StatusPending, Damages: []Damage{}}
}
