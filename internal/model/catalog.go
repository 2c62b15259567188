package model

// Choice is a (code, display name) pair of a closed list.
type Choice struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Fields are the submission categories. Each user may hold one file per field.
var Fields = []Choice{
	{Code: "coding", Name: "Coding"},
	{Code: "design", Name: "Design"},
	{Code: "writing", Name: "Writing"},
	{Code: "research", Name: "Research"},
	{Code: "video", Name: "Video"},
	{Code: "photography", Name: "Photography"},
}

// Regions classify users. They carry no behaviour.
var Regions = []Choice{
	{Code: "north", Name: "North"},
	{Code: "south", Name: "South"},
	{Code: "east", Name: "East"},
	{Code: "west", Name: "West"},
	{Code: "central", Name: "Central"},
}

// IsField reports whether code names a known field.
func IsField(code string) bool {
	return inChoices(Fields, code)
}

// IsRegion reports whether code names a known region.
func IsRegion(code string) bool {
	return inChoices(Regions, code)
}

func inChoices(cs []Choice, code string) bool {
	for _, c := range cs {
		if c.Code == code {
			return true
		}
	}
	return false
}
