package event

import "fmt"

// Kind is the sealed set of notification kinds reported by an event source.
//
// Code that needs to branch on a kind implements Visitor and calls Accept.
// Adding a kind adds a Visitor method, so every handler stops compiling until
// it deals with the new case.
type Kind interface {
	Accept(v Visitor)
	String() string
	sealedKind()
}

// Visitor receives the concrete variant of a Kind.
type Visitor interface {
	VisitAny(k Any)
	VisitCreate(k Create)
	VisitModify(k Modify)
	VisitRemove(k Remove)
	VisitAccess(k Access)
	VisitOther(k Other)
}

// EntryKind describes what sort of filesystem entry a create or remove refers to.
type EntryKind int

const (
	EntryAny EntryKind = iota
	EntryFile
	EntryFolder
	EntryOther
)

// String returns a human-readable representation of the entry kind.
func (e EntryKind) String() string {
	switch e {
	case EntryAny:
		return "any"
	case EntryFile:
		return "file"
	case EntryFolder:
		return "folder"
	case EntryOther:
		return "other"
	default:
		return "unknown"
	}
}

// AccessMode describes an access notification. All access modes are noise to
// the classifier.
type AccessMode int

const (
	AccessAny AccessMode = iota
	AccessRead
	AccessOpen
	AccessClose
	AccessOther
)

// String returns a human-readable representation of the access mode.
func (a AccessMode) String() string {
	switch a {
	case AccessAny:
		return "any"
	case AccessRead:
		return "read"
	case AccessOpen:
		return "open"
	case AccessClose:
		return "close"
	case AccessOther:
		return "other"
	default:
		return "unknown"
	}
}

// Any is an unclassified notification.
type Any struct{}

// Create reports a new entry.
type Create struct {
	Entry EntryKind
}

// Modify reports a change to an existing entry.
type Modify struct {
	Change ModifyKind
}

// Remove reports a deleted entry.
type Remove struct {
	Entry EntryKind
}

// Access reports a read, open or close of an entry.
type Access struct {
	Mode AccessMode
}

// Other is a platform-specific notification with no portable meaning.
type Other struct{}

func (k Any) Accept(v Visitor)    { v.VisitAny(k) }
func (k Create) Accept(v Visitor) { v.VisitCreate(k) }
func (k Modify) Accept(v Visitor) { v.VisitModify(k) }
func (k Remove) Accept(v Visitor) { v.VisitRemove(k) }
func (k Access) Accept(v Visitor) { v.VisitAccess(k) }
func (k Other) Accept(v Visitor)  { v.VisitOther(k) }

func (Any) sealedKind()    {}
func (Create) sealedKind() {}
func (Modify) sealedKind() {}
func (Remove) sealedKind() {}
func (Access) sealedKind() {}
func (Other) sealedKind()  {}

func (Any) String() string      { return "any" }
func (k Create) String() string { return fmt.Sprintf("create(%s)", k.Entry) }
func (k Remove) String() string { return fmt.Sprintf("remove(%s)", k.Entry) }
func (k Access) String() string { return fmt.Sprintf("access(%s)", k.Mode) }
func (Other) String() string    { return "other" }

func (k Modify) String() string {
	if k.Change == nil {
		return "modify(any)"
	}
	return fmt.Sprintf("modify(%s)", k.Change)
}

// ModifyKind is the sealed set of modification sub-kinds.
type ModifyKind interface {
	AcceptModify(v ModifyVisitor)
	String() string
	sealedModify()
}

// ModifyVisitor receives the concrete variant of a ModifyKind.
type ModifyVisitor interface {
	VisitAnyChange(m ModifyAny)
	VisitData(m ModifyData)
	VisitMetadata(m ModifyMetadata)
	VisitName(m ModifyName)
	VisitOtherChange(m ModifyOther)
}

// RenameMode tells which side of a rename a ModifyName notification carries.
type RenameMode int

const (
	RenameAny RenameMode = iota
	// RenameTo carries only the new path.
	RenameTo
	// RenameFrom carries only the old path.
	RenameFrom
	// RenameBoth carries the old path followed by the new path.
	RenameBoth
	RenameOther
)

// String returns a human-readable representation of the rename mode.
func (m RenameMode) String() string {
	switch m {
	case RenameAny:
		return "any"
	case RenameTo:
		return "to"
	case RenameFrom:
		return "from"
	case RenameBoth:
		return "both"
	case RenameOther:
		return "other"
	default:
		return "unknown"
	}
}

// ModifyAny is a modification of unknown nature.
type ModifyAny struct{}

// ModifyData is a change to file contents.
type ModifyData struct{}

// ModifyMetadata is a change to permissions, ownership or timestamps.
type ModifyMetadata struct{}

// ModifyName is a rename.
type ModifyName struct {
	Mode RenameMode
}

// ModifyOther is a platform-specific modification.
type ModifyOther struct{}

func (m ModifyAny) AcceptModify(v ModifyVisitor)      { v.VisitAnyChange(m) }
func (m ModifyData) AcceptModify(v ModifyVisitor)     { v.VisitData(m) }
func (m ModifyMetadata) AcceptModify(v ModifyVisitor) { v.VisitMetadata(m) }
func (m ModifyName) AcceptModify(v ModifyVisitor)     { v.VisitName(m) }
func (m ModifyOther) AcceptModify(v ModifyVisitor)    { v.VisitOtherChange(m) }

func (ModifyAny) sealedModify()      {}
func (ModifyData) sealedModify()     {}
func (ModifyMetadata) sealedModify() {}
func (ModifyName) sealedModify()     {}
func (ModifyOther) sealedModify()    {}

func (ModifyAny) String() string      { return "any" }
func (ModifyData) String() string     { return "data" }
func (ModifyMetadata) String() string { return "metadata" }
func (m ModifyName) String() string   { return "name:" + m.Mode.String() }
func (ModifyOther) String() string    { return "other" }
