package suggestions

// State describes where a suggestion sits in its lifecycle. The draft phase
// exists only inside Create before the record is committed, so it has no
// representation here.
type State string

const (
	// StateOpen allows edits and resolutions.
	StateOpen State = "open"
	// StateReplied freezes the submission content; only archival remains.
	StateReplied State = "replied"
	// StateArchived is terminal.
	StateArchived State = "archived"
)

// State derives the lifecycle state from the write-once timestamps.
func (s Suggestion) State() State {
	switch {
	case s.ArchivedAtSeconds != nil:
		return StateArchived
	case s.RepliedAtSeconds != nil:
		return StateReplied
	default:
		return StateOpen
	}
}

// guardEdit reports why an edit is blocked, with a distinct error per
// blocking reason. Checked before any external call is attempted.
func guardEdit(s Suggestion, author AuthorID) error {
	if s.AuthorID != author.String() {
		return ErrWrongAuthor
	}
	switch s.State() {
	case StateArchived:
		return ErrArchived
	case StateReplied:
		return ErrReplied
	default:
		return nil
	}
}

// guardResolve rejects resolutions on archived suggestions before any
// external rendering is attempted. Replied suggestions pass the guard; the
// write-once replied_at update decides races at the persistence layer.
func guardResolve(s Suggestion) error {
	if s.State() == StateArchived {
		return ErrArchived
	}
	return nil
}

// guardArchive always passes: archival is idempotent and legal from every
// non-terminal state. Kept for symmetry and so the transition table lives in
// one file.
func guardArchive(Suggestion) error {
	return nil
}
