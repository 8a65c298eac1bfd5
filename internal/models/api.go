// Package models defines API payload and response envelope types.
package models

// APIStatus is the status field of an API response envelope.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for the local API surface.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"` // optional message for errors or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}

// CallLogRequest is the payload for creating a call log on the backend.
type CallLogRequest struct {
	LeadID    int64  `json:"leadId"`
	UserID    string `json:"userId"`
	Duration  int    `json:"duration"`
	Outcome   string `json:"outcome"`
	StageID   string `json:"stageId"`
	Remark    string `json:"remark"`
	StartedAt string `json:"startedAt,omitempty"`
}

// ScheduleRequest is the payload for creating a follow-up schedule.
type ScheduleRequest struct {
	LeadID      int64  `json:"leadId"`
	ScheduledAt string `json:"scheduledAt"`
}

// BulkAssignRequest reassigns a batch of leads to one agent.
type BulkAssignRequest struct {
	LeadIDs    []string `json:"leadIds"`
	AssignedTo string   `json:"assignedTo"`
	Reason     string   `json:"reason"`
}

// LoginRequest carries agent credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyTokenRequest asks the backend to validate a stored token.
type VerifyTokenRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Permission is one module/action grant on a backend user.
type Permission struct {
	Module  string   `json:"module"`
	Actions []string `json:"actions"`
	ID      string   `json:"_id,omitempty"`
}

// BackendRole is the role object nested in a backend user.
type BackendRole struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RoleRealName string `json:"roleRealName"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// BackendUser mirrors the backend login response user shape.
type BackendUser struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Role        BackendRole  `json:"role"`
	Permissions []Permission `json:"permissions"`
	Status      string       `json:"status"`
	IsBlocked   bool         `json:"isBlocked"`
}

// LoginResponse is the backend login/verify envelope.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	User        BackendUser `json:"user"`
}

// AuthUser is the flattened session user persisted locally. Permissions
// are flattened to "module:action" strings.
type AuthUser struct {
	UserID       string   `json:"userId"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	RoleRealName string   `json:"roleRealName"`
	IsSuperAdmin bool     `json:"isSuperAdmin"`
	Permissions  []string `json:"permissions"`
}
