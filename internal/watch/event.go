package watch

// Op is the kind of filesystem change reported to callbacks.
type Op string

const (
	OpAdd       Op = "add"
	OpChange    Op = "change"
	OpUnlink    Op = "unlink"
	OpAddDir    Op = "addDir"
	OpUnlinkDir Op = "unlinkDir"
)

// Event is one debounced change. Path is relative to the watch root and
// slash separated.
type Event struct {
	Op   Op
	Path string
}

// Callback receives events. Calls for one Watcher are sequential.
type Callback func(Event)

// merge folds a later op into an earlier one for the same path within a
// debounce window. A file removed and recreated in one window was replaced,
// which callers see as a change.
func merge(prev, next Op) Op {
	switch {
	case prev == OpUnlink && next == OpAdd:
		return OpChange
	case prev == OpAdd && next == OpChange:
		return OpAdd
	case prev == OpAddDir && next == OpChange:
		return OpAddDir
	default:
		return next
	}
}
