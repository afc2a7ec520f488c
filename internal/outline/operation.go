package outline

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Operation is one of the structural or content edits below. The set is
// closed: Engine.Apply switches over every variant.
type Operation interface {
	Name() string
	operation()
}

// Insert creates a node after AnchorID (or at the head of ParentID's
// children when AnchorID is nil). With SplitAt set the anchor's text is cut
// at that rune offset and the tail moves to the new node.
type Insert struct {
	AnchorID *string `json:"anchor_id"`
	ParentID *string `json:"parent_id"`
	Content  string  `json:"content"`
	SplitAt  *int    `json:"split_at,omitempty"`
}

type UpdateContent struct {
	UUID    string `json:"uuid"`
	Content string `json:"content"`
}

type MoveUp struct {
	UUID string `json:"uuid"`
}

type MoveDown struct {
	UUID string `json:"uuid"`
}

type Indent struct {
	UUID string `json:"uuid"`
}

type Outdent struct {
	UUID string `json:"uuid"`
}

// Move relocates UUID under ParentID right after PrevID (nil PrevID means
// first child).
type Move struct {
	UUID     string  `json:"uuid"`
	ParentID *string `json:"parent_id"`
	PrevID   *string `json:"prev_id"`
}

type MergePrev struct {
	UUID string `json:"uuid"`
}

type MergeNext struct {
	UUID string `json:"uuid"`
}

func (Insert) Name() string        { return "insert_after" }
func (UpdateContent) Name() string { return "update_content" }
func (MoveUp) Name() string        { return "move_up" }
func (MoveDown) Name() string      { return "move_down" }
func (Indent) Name() string        { return "indent" }
func (Outdent) Name() string       { return "outdent" }
func (Move) Name() string          { return "move" }
func (MergePrev) Name() string     { return "merge_prev" }
func (MergeNext) Name() string     { return "merge_next" }

func (Insert) operation()        {}
func (UpdateContent) operation() {}
func (MoveUp) operation()        {}
func (MoveDown) operation()      {}
func (Indent) operation()        {}
func (Outdent) operation()       {}
func (Move) operation()          {}
func (MergePrev) operation()     {}
func (MergeNext) operation()     {}

// OperationNames lists the accepted wire names.
var OperationNames = []string{
	"insert_after", "update_content", "move_up", "move_down",
	"indent", "outdent", "move", "merge_prev", "merge_next",
}

// ParseOperation decodes an operation from its wire name and JSON params.
func ParseOperation(name string, params json.RawMessage) (Operation, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	var (
		op  Operation
		err error
	)
	switch name {
	case "insert_after", "insert":
		var v Insert
		err = decodeParams(params, &v)
		op = v
	case "update_content":
		var v UpdateContent
		err = decodeParams(params, &v)
		op = v
	case "move_up":
		var v MoveUp
		err = decodeParams(params, &v)
		op = v
	case "move_down":
		var v MoveDown
		err = decodeParams(params, &v)
		op = v
	case "indent":
		var v Indent
		err = decodeParams(params, &v)
		op = v
	case "outdent":
		var v Outdent
		err = decodeParams(params, &v)
		op = v
	case "move":
		var v Move
		err = decodeParams(params, &v)
		op = v
	case "merge_prev":
		var v MergePrev
		err = decodeParams(params, &v)
		op = v
	case "merge_next":
		var v MergeNext
		err = decodeParams(params, &v)
		op = v
	default:
		return nil, &Error{Kind: KindValidation, Op: name, Message: "unknown operation"}
	}
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: name, Message: "invalid params: " + err.Error(), Err: err}
	}
	if err := validate(op); err != nil {
		err.Op = name
		return nil, err
	}
	return op, nil
}

func decodeParams(params json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}
	decoder := json.NewDecoder(bytes.NewReader(params))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// validate checks the attributes every variant must carry.
func validate(op Operation) *Error {
	var uuid string
	switch v := op.(type) {
	case Insert:
		if v.SplitAt != nil {
			if v.AnchorID == nil {
				return validationf("split_at requires anchor_id")
			}
			if v.Content != "" {
				return validationf("content and split_at are mutually exclusive")
			}
			if *v.SplitAt < 0 {
				return validationf("split_at must not be negative")
			}
		}
		return nil
	case UpdateContent:
		uuid = v.UUID
	case MoveUp:
		uuid = v.UUID
	case MoveDown:
		uuid = v.UUID
	case Indent:
		uuid = v.UUID
	case Outdent:
		uuid = v.UUID
	case Move:
		uuid = v.UUID
	case MergePrev:
		uuid = v.UUID
	case MergeNext:
		uuid = v.UUID
	case nil:
		return validationf("operation is required")
	}
	if strings.TrimSpace(uuid) == "" {
		return validationf("uuid is required")
	}
	return nil
}
