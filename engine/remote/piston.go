package remote

// File is one source file sent to the execution API
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// PistonRequest is the execution API request body
type PistonRequest struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Files    []File   `json:"files"`
	Args     []string `json:"args"`
	Stdin    string   `json:"stdin"`
}

// Stage is the outcome of a compile or run stage
type Stage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output string  `json:"output"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// PistonResponse is the execution API response body
type PistonResponse struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Run      Stage  `json:"run"`
	Compile  *Stage `json:"compile,omitempty"`
	Message  string `json:"message,omitempty"`
}
