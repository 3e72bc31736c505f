package game

// TimeControl defines the clock settings a game is created with.
type TimeControl struct {
	BaseMinutes      int    `json:"baseMinutes" bson:"baseMinutes"`
	IncrementSeconds int    `json:"incrementSeconds" bson:"incrementSeconds"`
	Label            string `json:"label" bson:"label"`
}

// BaseMs returns the starting time per side in milliseconds.
func (tc TimeControl) BaseMs() int64 {
	return int64(tc.BaseMinutes) * 60 * 1000
}

// IncrementMs returns the per-move increment in milliseconds.
func (tc TimeControl) IncrementMs() int64 {
	return int64(tc.IncrementSeconds) * 1000
}

// TimeControlConfigs maps preset labels to their configurations.
var TimeControlConfigs = map[string]TimeControl{
	"bullet":    {BaseMinutes: 1, IncrementSeconds: 0, Label: "bullet"},
	"blitz":     {BaseMinutes: 3, IncrementSeconds: 2, Label: "blitz"},
	"rapid":     {BaseMinutes: 10, IncrementSeconds: 5, Label: "rapid"},
	"classical": {BaseMinutes: 30, IncrementSeconds: 20, Label: "classical"},
}

// DefaultTimeControl is used when a creator does not name a preset.
const DefaultTimeControl = "rapid"

// IsValidTimeControl checks whether a preset label exists.
func IsValidTimeControl(label string) bool {
	_, ok := TimeControlConfigs[label]
	return ok
}

// GetTimeControl returns the TimeControl for a preset label, falling back
// to the default preset for unknown labels.
func GetTimeControl(label string) TimeControl {
	if tc, ok := TimeControlConfigs[label]; ok {
		return tc
	}
	return TimeControlConfigs[DefaultTimeControl]
}
