package governance

import "sync"

const (
	taskWrapMana       = "wrap_mana"
	taskUnwrapMana     = "unwrap_mana"
	taskRegisterLand   = "register_land"
	taskRegisterEstate = "register_estate"
	taskVote           = "vote"
	taskSubscribe      = "subscribe"
	taskUpdateStatus   = "update_status"
	taskDelete         = "delete"
)

// taskFlags holds one loading flag per outstanding async task so that duplicate user
// actions are refused while the first is in flight.
type taskFlags struct {
	mutex   sync.Mutex
	running map[string]bool
}

func newTaskFlags() *taskFlags {
	return &taskFlags{running: map[string]bool{}}
}

func (flags *taskFlags) begin(task string) bool {
	flags.mutex.Lock()
	defer flags.mutex.Unlock()
	if flags.running[task] {
		return false
	}
	flags.running[task] = true
	return true
}

func (flags *taskFlags) end(task string) {
	flags.mutex.Lock()
	defer flags.mutex.Unlock()
	delete(flags.running, task)
}

func (flags *taskFlags) loading(task string) bool {
	flags.mutex.Lock()
	defer flags.mutex.Unlock()
	return flags.running[task]
}
