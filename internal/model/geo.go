package model

// Department is a DIVIPOLA first-level division.
type Department struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Municipality is a DIVIPOLA second-level division. Coordinates are
// optional; the reference dataset omits them for a handful of rows.
type Municipality struct {
	Code           string   `json:"code"`
	DepartmentCode string   `json:"department_code"`
	Name           string   `json:"name"`
	DepartmentName string   `json:"department_name"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}
