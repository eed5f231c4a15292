package aspen

// Credentials are passed by value per fetch and never stored by the client.
type Credentials struct {
	Username string
	Password string
}

type Student struct {
	OID  string `json:"studentOid"`
	Name string `json:"name"`
}

// Class is one row of the academicClasses response. Every field the portal
// may omit is a pointer; absence is a data condition, not an error.
type Class struct {
	CourseName  string   `json:"courseName"`
	TermAverage string   `json:"sectionTermAverage"`
	Percentage  *float64 `json:"percentageValue"`
	TeacherName string   `json:"teacherName"`
	ScheduleOID string   `json:"studentScheduleOid"`
}

type Assignment struct {
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	DueDate       *int64         `json:"dueDate"` // epoch millis
	ScoreElements []ScoreElement `json:"scoreElements"`
}

// ScoreElement carries the raw score value, which the portal returns either
// as a number or a letter string.
type ScoreElement struct {
	Score        any      `json:"score"`
	ScorePercent *float64 `json:"scorePercent"`
}
