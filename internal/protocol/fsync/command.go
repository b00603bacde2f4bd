package fsync

// Command identifies a request. The set is closed: any token that is not one
// of the protocol commands parses to CommandUnknown.
type Command uint8

const (
	CommandUnknown Command = iota
	CommandGet
	CommandPut
	CommandDel
	CommandMkdir
	CommandRmdir
	CommandStat
	CommandList
	CommandCd
	CommandPwd
	CommandSleep
	CommandQuit
)

// ParseCommand maps a command token to its Command. Tokens are case sensitive.
func ParseCommand(token string) Command {
	switch token {
	case "GET":
		return CommandGet
	case "PUT":
		return CommandPut
	case "DEL":
		return CommandDel
	case "MKDIR":
		return CommandMkdir
	case "RMDIR":
		return CommandRmdir
	case "STAT":
		return CommandStat
	case "LIST":
		return CommandList
	case "CD":
		return CommandCd
	case "PWD":
		return CommandPwd
	case "SLEEP":
		return CommandSleep
	case "QUIT":
		return CommandQuit
	default:
		return CommandUnknown
	}
}

func (c Command) String() string {
	switch c {
	case CommandGet:
		return "GET"
	case CommandPut:
		return "PUT"
	case CommandDel:
		return "DEL"
	case CommandMkdir:
		return "MKDIR"
	case CommandRmdir:
		return "RMDIR"
	case CommandStat:
		return "STAT"
	case CommandList:
		return "LIST"
	case CommandCd:
		return "CD"
	case CommandPwd:
		return "PWD"
	case CommandSleep:
		return "SLEEP"
	case CommandQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

// Arity returns the minimum and maximum number of argument lines.
func (c Command) Arity() (min, max int) {
	switch c {
	case CommandGet, CommandPut, CommandDel, CommandMkdir, CommandRmdir, CommandStat, CommandCd:
		return 1, 1
	case CommandList, CommandSleep:
		return 0, 1
	default:
		return 0, 0
	}
}

// HasPayload reports whether the request carries a raw payload.
func (c Command) HasPayload() bool {
	return c == CommandPut
}

// Mutating reports whether a successful execution changes the tree and
// therefore publishes a change event.
func (c Command) Mutating() bool {
	switch c {
	case CommandPut, CommandDel, CommandMkdir, CommandRmdir:
		return true
	default:
		return false
	}
}
