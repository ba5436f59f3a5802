package climate

import (
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
)

// cacheKey uses the shortest exact form of each coordinate, so distinct
// floats never share an entry.
func cacheKey(lat, lon float64, day time.Time) string {
	return strconv.FormatFloat(lat, 'g', -1, 64) + "," + strconv.FormatFloat(lon, 'g', -1, 64) + "|" + day.Format(domain.DateLayout)
}

// sampleCache is a thread-safe write-once cache of climate samples. With
// maxEntries <= 0 it never evicts; otherwise the least recently used entry is
// dropped once the bound is exceeded.
type sampleCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.ClimateSample
	prev  *entry
	next  *entry
}

func newSampleCache(maxEntries int) *sampleCache {
	return &sampleCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *sampleCache) get(key string) (domain.ClimateSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.ClimateSample{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

// put stores value unless key is already present. The first write wins.
func (c *sampleCache) put(key string, value domain.ClimateSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *sampleCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *sampleCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *sampleCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *sampleCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *sampleCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
