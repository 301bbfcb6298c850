package id

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMax         = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

var ErrNodeRange = errors.New("node id out of range")

// Node generates task keys that sort by creation time. One Node per process.
type Node struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	step      int64
	now       func() int64
}

func NewNode(nodeID int64) (*Node, error) {
	if nodeID < 0 || nodeID > nodeMax {
		return nil, ErrNodeRange
	}
	return &Node{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate returns the next id.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if now < n.timestamp {
		// clock went backwards; keep issuing from the last seen millisecond
		now = n.timestamp
	}

	if now == n.timestamp {
		n.step = (n.step + 1) & stepMax
		if n.step == 0 {
			for now <= n.timestamp {
				now = n.now()
			}
		}
	} else {
		n.step = 0
	}
	n.timestamp = now

	return ((now - epoch) << timeShift) | (n.nodeID << nodeShift) | n.step
}

// Key returns the next id formatted as a queue member key.
func (n *Node) Key() string {
	return strconv.FormatInt(n.Generate(), 36)
}

// KeyTime returns the creation time encoded in a key from Key.
func KeyTime(key string) (time.Time, error) {
	v, err := strconv.ParseInt(key, 36, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse key %q: %w", key, err)
	}
	return time.UnixMilli((v >> timeShift) + epoch), nil
}
