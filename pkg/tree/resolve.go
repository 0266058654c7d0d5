package tree

import "fmt"

// MoveMode says where SourceNodeID lands relative to TargetNodeID.
type MoveMode string

const (
	MoveFirstChild MoveMode = "first-child"
	MoveLastChild  MoveMode = "last-child"
	MoveLeft       MoveMode = "left"
	MoveRight      MoveMode = "right"
)

// MoveInstruction is the storage-independent description of a move. Left and
// right insert immediately before and after TargetNodeID as its sibling;
// first-child and last-child insert under TargetNodeID.
type MoveInstruction struct {
	SourceNodeID string   `json:"source_node_id"`
	TargetNodeID string   `json:"target_node_id"`
	Mode         MoveMode `json:"mode"`
	OldParentID  string   `json:"old_parent_id"`
}

func (m MoveInstruction) String() string {
	return fmt.Sprintf("%s -> %s of %s (from %s)", m.SourceNodeID, m.Mode, m.TargetNodeID, m.OldParentID)
}

// DragNode is the drag library's view of a dragged row. An empty ParentID
// means the row sits directly under the root.
type DragNode struct {
	ID       string
	ParentID string
}

// ResolveMove maps a drop gesture to a MoveInstruction. index is the
// insertion index in targetParentChildren as the user saw it, before the
// dragged node was removed. Empty parent ids stand for rootID.
//
// The boundary checks run in order and the later one wins, so a drop into an
// empty container resolves to last-child. Sibling anchoring is only tried
// when neither boundary matched: right of the previous sibling, otherwise
// left of the next one. Nil means no anchor exists. Dropping a node inside
// itself must be rejected by DisableDrop before calling this.
func ResolveMove(rootID, dragNodeID string, dragNodes []DragNode, targetParentID string, targetParentChildren []string, index int) *MoveInstruction {
	oldParentID := rootID
	for _, dn := range dragNodes {
		if dn.ID == dragNodeID && dn.ParentID != "" {
			oldParentID = dn.ParentID
			break
		}
	}
	if targetParentID == "" {
		targetParentID = rootID
	}

	var instr *MoveInstruction
	if index == 0 {
		instr = &MoveInstruction{TargetNodeID: targetParentID, Mode: MoveFirstChild}
	}
	if index == len(targetParentChildren) {
		instr = &MoveInstruction{TargetNodeID: targetParentID, Mode: MoveLastChild}
	}
	if instr == nil {
		switch {
		case index-1 >= 0 && index-1 < len(targetParentChildren):
			instr = &MoveInstruction{TargetNodeID: targetParentChildren[index-1], Mode: MoveRight}
		case index+1 >= 0 && index+1 < len(targetParentChildren):
			instr = &MoveInstruction{TargetNodeID: targetParentChildren[index+1], Mode: MoveLeft}
		default:
			return nil
		}
	}
	instr.SourceNodeID = dragNodeID
	instr.OldParentID = oldParentID
	return instr
}
