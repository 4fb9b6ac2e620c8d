package manager

type state uint

const (
	reset state = iota
	loading
	initialized
	running
	reloading
	exiting
)

func (s state) String() string {
	switch s {
	case reset:
		return "reset"
	case loading:
		return "loading"
	case initialized:
		return "initialized"
	case running:
		return "running"
	case reloading:
		return "reloading"
	case exiting:
		return "exiting"
	default:
		return "unknown"
	}
}
