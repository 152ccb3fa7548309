package diag

// Depth selects how much of a container an inspection examines, trading
// thoroughness for time. It is shared by every inspector so the registry and
// host can reason about it uniformly.
type Depth string

const (
	DepthQuick     Depth = "quick"
	DepthStandard  Depth = "standard"
	DepthThorough  Depth = "thorough"
)
