package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the result of a single strategy attempt: either a success with
// a payload or a failure with a reason. Build one with Success or Failure.
type Outcome struct {
	ok         bool
	payload    string
	strategyID string
	note       string
	reason     string
	angle      float64
}

// Success returns a successful outcome. A blank payload is not a success and
// yields a failure instead.
func Success(payload, strategyID, note string) Outcome {
	if strings.TrimSpace(payload) == "" {
		return Failure("empty payload")
	}
	return Outcome{ok: true, payload: payload, strategyID: strategyID, note: note}
}

// Failure returns a failed outcome carrying reason.
func Failure(reason string) Outcome {
	if reason == "" {
		reason = "unknown failure"
	}
	return Outcome{reason: reason}
}

// Succeeded reports whether the attempt produced a payload.
func (o Outcome) Succeeded() bool { return o.ok }

// Payload is the detected text. Empty on failure.
func (o Outcome) Payload() string { return o.payload }

// StrategyID names the strategy that produced a success.
func (o Outcome) StrategyID() string { return o.strategyID }

// Note is optional detail about a success, such as the symbology.
func (o Outcome) Note() string { return o.note }

// Reason explains a failure. Empty on success.
func (o Outcome) Reason() string { return o.reason }

// Angle is the rotation in degrees at which a success was found.
func (o Outcome) Angle() float64 { return o.angle }

// atAngle records the rotation that produced a success. Non-zero angles are
// appended to the note.
func (o Outcome) atAngle(angle float64) Outcome {
	if !o.ok {
		return o
	}
	o.angle = angle
	if angle != 0 {
		suffix := fmt.Sprintf("(angle %s°)", formatAngle(angle))
		if o.note == "" {
			o.note = suffix
		} else {
			o.note = o.note + " " + suffix
		}
	}
	return o
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	if o.ok {
		if o.note == "" {
			return "success via " + o.strategyID
		}
		return "success via " + o.strategyID + ": " + o.note
	}
	return "failure: " + o.reason
}

func formatAngle(angle float64) string {
	return strconv.FormatFloat(angle, 'f', -1, 64)
}
