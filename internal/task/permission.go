package task

// RequestType is the kind of a permission request.
type RequestType string

const (
	RequestQuestion RequestType = "question"
	RequestTool     RequestType = "tool"
	RequestFile     RequestType = "file"
	// RequestResource covers store/resource operations (create, update,
	// delete on an external commerce resource).
	RequestResource RequestType = "resource"
)

// QuestionOption is a selectable answer of a question request.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// ResourceOperation describes an external resource mutation awaiting approval.
type ResourceOperation struct {
	Operation string         `json:"operation"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details,omitempty"`
}

// PermissionRequest is an agent-originated prompt that blocks the run until a
// decision is recorded.
type PermissionRequest struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"taskId"`
	Type        RequestType      `json:"type"`
	Question    string           `json:"question,omitempty"`
	Header      string           `json:"header,omitempty"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`

	ToolName  string `json:"toolName,omitempty"`
	ToolInput string `json:"toolInput,omitempty"`
	Command   string `json:"command,omitempty"`

	FilePaths []string `json:"filePaths,omitempty"`
	FileOp    string   `json:"fileOperation,omitempty"`

	Resource *ResourceOperation `json:"resource,omitempty"`

	// TimeoutMs is the channel-level deadline for question requests.
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// DecisionKind is the verdict of a decision.
type DecisionKind string

const (
	DecisionAllow DecisionKind = "allow"
	DecisionDeny  DecisionKind = "deny"
)

// Decision resolves a permission request.
type Decision struct {
	RequestID         string       `json:"requestId"`
	TaskID            string       `json:"taskId"`
	Decision          DecisionKind `json:"decision"`
	SelectedOptions   []string     `json:"selectedOptions,omitempty"`
	CustomText        string       `json:"customText,omitempty"`
	RememberSession   bool         `json:"rememberSession,omitempty"`
	RememberPermanent bool         `json:"rememberPermanent,omitempty"`
	// NoResponse marks a decision synthesized from a timeout.
	NoResponse bool `json:"noResponse,omitempty"`
}
