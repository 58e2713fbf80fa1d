package trace

import (
	"math/rand"
	"sync"
	"time"
)

var idSource = struct {
	sync.Mutex
	*rand.Rand
}{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}

// randomID returns a non-zero 63-bit identifier. Collector protocols
// commonly reject zero and treat IDs as signed, so the top bit stays
// clear.
func randomID() uint64 {
	idSource.Lock()
	defer idSource.Unlock()
	for {
		if id := uint64(idSource.Int63()); id != 0 {
			return id
		}
	}
}
