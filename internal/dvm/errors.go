package dvm

import "fmt"

// Stage names the step of a publication that failed.
type Stage string

const (
	StageEncode  Stage = "encode"
	StageSign    Stage = "sign"
	StagePublish Stage = "publish"
)

// ResponderError reports a job result or announcement that could not be
// delivered. The request is dropped; nothing retries it.
type ResponderError struct {
	Stage     Stage
	RequestID string
	Err       error
}

func (e *ResponderError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("dvm %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("dvm %s failed for request %s: %v", e.Stage, e.RequestID, e.Err)
}

func (e *ResponderError) Unwrap() error { return e.Err }
