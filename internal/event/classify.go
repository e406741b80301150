package event

import "fmt"

// Verb names a log action.
type Verb string

const (
	VerbCreated  Verb = "Created"
	VerbModified Verb = "Modified"
	VerbRemoved  Verb = "Removed"
	VerbRename   Verb = "Rename"
)

// Action is one line the classifier wants logged.
type Action struct {
	Verb  Verb
	Paths []string
}

// String renders the action the way it is logged.
func (a Action) String() string {
	if a.Verb == VerbRename && len(a.Paths) >= 2 {
		return fmt.Sprintf("%s: %s → %s", a.Verb, a.Paths[0], a.Paths[1])
	}
	if len(a.Paths) == 0 {
		return string(a.Verb)
	}
	return fmt.Sprintf("%s: %s", a.Verb, a.Paths[0])
}

// Classify maps a notification to the actions that should be logged for it.
// It has no side effects and never influences whether per-path work runs.
//
// Half renames (RenameFrom, RenameTo) produce nothing: the other side is
// expected to arrive as its own create or remove notification.
func Classify(n Notification) []Action {
	if n.Kind == nil {
		return nil
	}
	c := &classifier{paths: n.Paths}
	n.Kind.Accept(c)
	return c.actions
}

type classifier struct {
	paths   []string
	actions []Action
}

func (c *classifier) each(verb Verb) {
	for _, path := range c.paths {
		c.actions = append(c.actions, Action{Verb: verb, Paths: []string{path}})
	}
}

func (c *classifier) VisitAny(Any)       {}
func (c *classifier) VisitAccess(Access) {}
func (c *classifier) VisitOther(Other)   {}

func (c *classifier) VisitCreate(Create) { c.each(VerbCreated) }
func (c *classifier) VisitRemove(Remove) { c.each(VerbRemoved) }

func (c *classifier) VisitModify(k Modify) {
	if k.Change == nil {
		c.VisitAnyChange(ModifyAny{})
		return
	}
	k.Change.AcceptModify(c)
}

func (c *classifier) VisitAnyChange(ModifyAny)     { c.each(VerbModified) }
func (c *classifier) VisitData(ModifyData)         { c.each(VerbModified) }
func (c *classifier) VisitMetadata(ModifyMetadata) { c.each(VerbModified) }
func (c *classifier) VisitOtherChange(ModifyOther) { c.each(VerbModified) }

func (c *classifier) VisitName(m ModifyName) {
	if m.Mode != RenameBoth || len(c.paths) < 2 {
		return
	}
	c.actions = append(c.actions, Action{
		Verb:  VerbRename,
		Paths: []string{c.paths[0], c.paths[1]},
	})
}
