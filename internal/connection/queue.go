package connection

// QueuedItem is an encoded outbound frame waiting for a usable socket.
type QueuedItem struct {
	Data           []byte
	AnnouncementID uint64 // non-zero for held subscription announcements
}

// OutboundQueue is a bounded FIFO that evicts the oldest item when full.
// Not safe for concurrent use; the Manager guards it with its mutex.
type OutboundQueue struct {
	items    []QueuedItem
	capacity int
	evicted  int64
}

// NewOutboundQueue creates a queue. A capacity below 1 is treated as 1.
func NewOutboundQueue(capacity int) *OutboundQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &OutboundQueue{
		items:    make([]QueuedItem, 0, capacity),
		capacity: capacity,
	}
}

// Push appends item, evicting the oldest when full. Returns true on eviction.
func (q *OutboundQueue) Push(item QueuedItem) bool {
	evicted := false
	if len(q.items) == q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.evicted++
		evicted = true
	}
	q.items = append(q.items, item)
	return evicted
}

// Drain sends items in order. On the first send error it stops and keeps
// that item and everything after it. Returns the number sent.
func (q *OutboundQueue) Drain(send func(QueuedItem) error) (int, error) {
	for i, item := range q.items {
		if err := send(item); err != nil {
			q.items = append(q.items[:0], q.items[i:]...)
			return i, err
		}
	}
	n := len(q.items)
	q.clear()
	return n, nil
}

// Remove drops every queued item carrying the given announcement id.
func (q *OutboundQueue) Remove(announcementID uint64) int {
	kept := q.items[:0]
	for _, item := range q.items {
		if item.AnnouncementID != announcementID {
			kept = append(kept, item)
		}
	}
	removed := len(q.items) - len(kept)
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = QueuedItem{}
	}
	q.items = kept
	return removed
}

// Clear empties the queue and returns how many items were dropped.
func (q *OutboundQueue) Clear() int {
	n := len(q.items)
	q.clear()
	return n
}

// Len returns the number of queued items.
func (q *OutboundQueue) Len() int {
	return len(q.items)
}

// Evicted returns the total number of items dropped for capacity.
func (q *OutboundQueue) Evicted() int64 {
	return q.evicted
}

func (q *OutboundQueue) clear() {
	for i := range q.items {
		q.items[i] = QueuedItem{}
	}
	q.items = q.items[:0]
}
