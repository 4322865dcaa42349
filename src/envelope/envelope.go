package envelope

// Action is the discriminant of an Envelope.
type Action string

const (
	// Sync asks an authoritative context for the current state.
	Sync Action = "sync"
	// Change carries a (partialized) state snapshot.
	Change Action = "change"
	// AddNewTab assigns a participant id to the context identified by Target
	// and carries the full roster.
	AddNewTab Action = "add_new_tab"
	// Close announces the departure of participant Tab.
	Close Action = "close"
	// ChangeMain hands leadership over to participant Tab and carries the
	// updated roster.
	ChangeMain Action = "change_main"
)

// Valid returns true for the actions understood by the protocol.
func (a Action) Valid() bool {
	switch a {
	case Sync, Change, AddNewTab, Close, ChangeMain:
		return true
	default:
		return false
	}
}

// Envelope is the wire message.
type Envelope struct {
	Action   Action                 `json:"action" mapstructure:"action"`
	ID       string                 `json:"id" mapstructure:"id"`
	SourceID string                 `json:"sourceId" mapstructure:"sourceId"`
	Name     string                 `json:"name,omitempty" mapstructure:"name"`
	State    map[string]interface{} `json:"state,omitempty" mapstructure:"state"`
	Tabs     []int                  `json:"tabs,omitempty" mapstructure:"tabs"`
	Tab      int                    `json:"tab" mapstructure:"tab"`
	Target   string                 `json:"target,omitempty" mapstructure:"target"`
}

// NewSync creates a sync request.
func NewSync(gen *IDGenerator, name string) *Envelope {
	return newEnvelope(gen, Sync, name)
}

// NewChange creates a change Envelope carrying state. The state is expected to
// have been partialized and cloned by the caller.
func NewChange(gen *IDGenerator, name string, state map[string]interface{}) *Envelope {
	env := newEnvelope(gen, Change, name)
	env.State = state
	return env
}

// NewAddNewTab assigns tab to the context whose SourceID is target.
func NewAddNewTab(gen *IDGenerator, name string, target string, tab int, tabs []int) *Envelope {
	env := newEnvelope(gen, AddNewTab, name)
	env.Target = target
	env.Tab = tab
	env.Tabs = copyTabs(tabs)
	return env
}

// NewClose announces the departure of tab.
func NewClose(gen *IDGenerator, name string, tab int) *Envelope {
	env := newEnvelope(gen, Close, name)
	env.Tab = tab
	return env
}

// NewChangeMain hands leadership to tab.
func NewChangeMain(gen *IDGenerator, name string, tab int, tabs []int) *Envelope {
	env := newEnvelope(gen, ChangeMain, name)
	env.Tab = tab
	env.Tabs = copyTabs(tabs)
	return env
}

func newEnvelope(gen *IDGenerator, action Action, name string) *Envelope {
	return &Envelope{
		Action:   action,
		ID:       gen.Next(),
		SourceID: gen.SourceID(),
		Name:     name,
	}
}

// Copy returns a copy of the Envelope which does not share the Tabs slice
// with the original. State is shared; it is never mutated once sent.
func (e *Envelope) Copy() *Envelope {
	res := *e
	res.Tabs = copyTabs(e.Tabs)
	return &res
}

func copyTabs(tabs []int) []int {
	if tabs == nil {
		return nil
	}
	res := make([]int, len(tabs))
	copy(res, tabs)
	return res
}
