package leveldb

const dataVersion = 3

// record flags
const (
	recordSnapshot = 0x0
	recordEvent    = 0x1
)

// key prefixes
var (
	prefixSnapshot = []byte("snap:")
	prefixLog      = []byte("log:")
)

type coder byte

const (
	coderNil coder = iota
	coderInt64
	coderString
	coderTime   // time.Time, unix nano
	coderArray  // []T
	coderStruct // struct{}
)
