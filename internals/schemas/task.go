package schemas

import (
	"encoding/json"
	"time"

	z "github.com/Oudwins/zog"
)

type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

const EventTypeManual = "manual"

// Task is created by the automation layer and read-only here, except for
// the fields in Result.
type Task struct {
	ID               string          `json:"id"`
	EventType        string          `json:"eventType"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	RepoID           string          `json:"repoId"`
	RobotID          string          `json:"robotId"`
	ActorUserID      string          `json:"actorUserId,omitempty"`
	Ref              string          `json:"ref,omitempty"`
	IssueID          string          `json:"issueId,omitempty"`
	MergeRequestID   string          `json:"mergeRequestId,omitempty"`
	CommitSHA        string          `json:"commitSha,omitempty"`
	GroupID          string          `json:"groupId,omitempty"`
	RetryCount       int             `json:"retryCount"`
	SkipProviderPost bool            `json:"skipProviderPost"`
	Status           TaskStatus      `json:"status"`
	Result           TaskResult      `json:"result"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type TaskResult struct {
	Logs               []string           `json:"logs,omitempty"`
	LogsSeq            uint64             `json:"logsSeq"`
	TokenUsage         *TokenUsage        `json:"tokenUsage,omitempty"`
	RepoWorkflow       *GitWorkflowResult `json:"repoWorkflow,omitempty"`
	OutputText         string             `json:"outputText,omitempty"`
	ProviderCommentURL string             `json:"providerCommentUrl,omitempty"`
	Error              string             `json:"error,omitempty"`
}

// ResultPatch sets only the non-nil fields.
type ResultPatch struct {
	Logs               []string
	LogsSeq            *uint64
	TokenUsage         *TokenUsage
	RepoWorkflow       *GitWorkflowResult
	OutputText         *string
	ProviderCommentURL *string
	Error              *string
}

func (p ResultPatch) Apply(result *TaskResult) {
	if p.Logs != nil {
		result.Logs = append([]string(nil), p.Logs...)
	}
	if p.LogsSeq != nil {
		result.LogsSeq = *p.LogsSeq
	}
	if p.TokenUsage != nil {
		usage := *p.TokenUsage
		result.TokenUsage = &usage
	}
	if p.RepoWorkflow != nil {
		workflow := *p.RepoWorkflow
		result.RepoWorkflow = &workflow
	}
	if p.OutputText != nil {
		result.OutputText = *p.OutputText
	}
	if p.ProviderCommentURL != nil {
		result.ProviderCommentURL = *p.ProviderCommentURL
	}
	if p.Error != nil {
		result.Error = *p.Error
	}
}

type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// Add accumulates a delta. Negative components are treated as zero so the
// running totals never decrease.
func (u *TokenUsage) Add(input, output int64) {
	if input < 0 {
		input = 0
	}
	if output < 0 {
		output = 0
	}
	u.InputTokens += input
	u.OutputTokens += output
	u.TotalTokens += input + output
}

func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0
}

type TaskCreateRequest struct {
	RepoID           string          `json:"repoId" zog:"repoId"`
	RobotID          string          `json:"robotId" zog:"robotId"`
	EventType        string          `json:"eventType" zog:"eventType"`
	Ref              string          `json:"ref" zog:"ref"`
	IssueID          string          `json:"issueId" zog:"issueId"`
	MergeRequestID   string          `json:"mergeRequestId" zog:"mergeRequestId"`
	GroupID          string          `json:"groupId" zog:"groupId"`
	ActorUserID      string          `json:"actorUserId" zog:"actorUserId"`
	SkipProviderPost *bool           `json:"skipProviderPost" zog:"skipProviderPost"`
	Payload          json.RawMessage `json:"payload"`
}

var TaskCreateSchema = z.Struct(z.Shape{
	"RepoID":           z.String().Required().Trim(),
	"RobotID":          z.String().Required().Trim(),
	"EventType":        z.String().Default(EventTypeManual).Trim(),
	"Ref":              z.String().Optional().Trim(),
	"IssueID":          z.String().Optional().Trim(),
	"MergeRequestID":   z.String().Optional().Trim(),
	"GroupID":          z.String().Optional().Trim(),
	"ActorUserID":      z.String().Optional().Trim(),
	"SkipProviderPost": z.Ptr(z.Bool()),
})

// NewTask builds a queued task from a validated request. Console triggers
// skip the platform comment unless told otherwise.
func (r TaskCreateRequest) NewTask(id string, now time.Time) *Task {
	skip := r.EventType == EventTypeManual
	if r.SkipProviderPost != nil {
		skip = *r.SkipProviderPost
	}
	return &Task{
		ID:               id,
		EventType:        r.EventType,
		Payload:          r.Payload,
		RepoID:           r.RepoID,
		RobotID:          r.RobotID,
		ActorUserID:      r.ActorUserID,
		Ref:              r.Ref,
		IssueID:          r.IssueID,
		MergeRequestID:   r.MergeRequestID,
		GroupID:          r.GroupID,
		SkipProviderPost: skip,
		Status:           TaskStatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

type TaskResponse struct {
	TaskID     string      `json:"taskId"`
	Status     TaskStatus  `json:"status"`
	CreatedAt  string      `json:"createdAt"`
	UpdatedAt  string      `json:"updatedAt,omitempty"`
	ConsoleURL string      `json:"consoleUrl,omitempty"`
	Result     *TaskResult `json:"result,omitempty"`
}

func NewTaskResponse(task *Task, consoleURL string) *TaskResponse {
	result := task.Result
	return &TaskResponse{
		TaskID:     task.ID,
		Status:     task.Status,
		CreatedAt:  task.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  task.UpdatedAt.UTC().Format(time.RFC3339Nano),
		ConsoleURL: consoleURL,
		Result:     &result,
	}
}
