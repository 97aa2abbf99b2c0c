package main

import (
	"encoding/json"
	"fmt"
	"os"

	z "github.com/Oudwins/zog"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// taskFlags are the task fields shared by `run` and `trigger`.
type taskFlags struct {
	RepoID         string
	RobotID        string
	EventType      string
	Ref            string
	IssueID        string
	MergeRequestID string
	GroupID        string
	ActorUserID    string
	Prompt         string
	PayloadFile    string
	Post           bool
}

func (f *taskFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.RepoID, "repo", "", "repository id from the catalog")
	flags.StringVar(&f.RobotID, "robot", "", "robot id from the catalog")
	flags.StringVar(&f.EventType, "event", schemas.EventTypeManual, "event type recorded on the task")
	flags.StringVar(&f.Ref, "ref", "", "branch or ref to check out")
	flags.StringVar(&f.IssueID, "issue", "", "issue the task is about")
	flags.StringVar(&f.MergeRequestID, "mr", "", "merge request the task is about")
	flags.StringVar(&f.GroupID, "group", "", "execution group; resumes the group's agent session")
	flags.StringVar(&f.ActorUserID, "actor", "", "user whose credential store may be used")
	flags.StringVar(&f.Prompt, "prompt", "", "request text for the agent")
	flags.StringVar(&f.PayloadFile, "payload", "", "JSON file with the event payload")
	flags.BoolVar(&f.Post, "post", false, "post the result as a platform comment")
}

// request validates the flags into a create request. --post is only
// forwarded when given, so the event type decides otherwise.
func (f *taskFlags) request(cmd *cobra.Command) (schemas.TaskCreateRequest, error) {
	request := schemas.TaskCreateRequest{
		RepoID:         f.RepoID,
		RobotID:        f.RobotID,
		EventType:      f.EventType,
		Ref:            f.Ref,
		IssueID:        f.IssueID,
		MergeRequestID: f.MergeRequestID,
		GroupID:        f.GroupID,
		ActorUserID:    f.ActorUserID,
	}
	if cmd.Flags().Changed("post") {
		skip := !f.Post
		request.SkipProviderPost = &skip
	}
	if issues := schemas.TaskCreateSchema.Validate(&request); len(issues) > 0 {
		return request, fmt.Errorf("invalid arguments:\n%s", z.Issues.Prettify(issues))
	}

	payload, err := f.payload()
	if err != nil {
		return request, err
	}
	request.Payload = payload
	return request, nil
}

func (f *taskFlags) payload() (json.RawMessage, error) {
	var payload map[string]any
	if f.PayloadFile != "" {
		data, err := os.ReadFile(f.PayloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
			return nil, fmt.Errorf("payload %s is not a JSON object", f.PayloadFile)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	if f.Prompt != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["prompt"] = f.Prompt
	}
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
