package app

import (
	"os"
	"sync"
)

// InTestMode reports whether STOCKBOOK_TEST_MODE=1 is set. The binaries
// return before dialing Postgres or Redis when it is.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv("STOCKBOOK_TEST_MODE") == "1"
})
