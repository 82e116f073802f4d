package errorhandler

import (
	"context"
)

type ActionType int

const (
	ActionTypeSkip     ActionType = iota // Count the record and move on silently
	ActionTypeDiagnose                   // Emit a diagnostic entry and move on
	ActionTypeFail                       // Abort the task
)

func (a ActionType) String() string {
	switch a {
	case ActionTypeSkip:
		return "Skip"
	case ActionTypeDiagnose:
		return "Diagnose"
	case ActionTypeFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

var _ Action = ActionSkip{}
var _ Action = ActionDiagnose{}
var _ Action = ActionFail{}

type Action interface {
	Type() ActionType
}

type ActionSkip struct{}

func (a ActionSkip) Type() ActionType {
	return ActionTypeSkip
}

type ActionDiagnose struct{}

func (a ActionDiagnose) Type() ActionType {
	return ActionTypeDiagnose
}

type ActionFail struct{}

func (a ActionFail) Type() ActionType {
	return ActionTypeFail
}

type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}
