package ids

import (
	"strconv"
	"sync"
	"time"
)

// 41 位毫秒时间戳 | 10 位节点 | 12 位序列
const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
	tsMask   = 1<<41 - 1
)

// epoch 2020-01-01 UTC
var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Node 单实例的通知 ID 生成器，同一 node 内严格递增
type Node struct {
	mu   sync.Mutex
	node int64
	last int64 // 上次发号的毫秒偏移
	seq  int64
	now  func() time.Time
}

func NewNode(node int64) *Node {
	if node < 0 || node > maxNode {
		node = 1
	}
	return &Node{node: node, now: time.Now}
}

func (n *Node) tick() int64 {
	return n.now().Sub(epoch).Milliseconds()
}

func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.tick()
	// 时钟回拨时沿用上次的毫秒，靠序列号继续发号
	if ms < n.last {
		ms = n.last
	}
	if ms == n.last {
		n.seq = (n.seq + 1) & seqMask
		if n.seq == 0 {
			for ms <= n.last {
				time.Sleep(100 * time.Microsecond)
				ms = n.tick()
			}
		}
	} else {
		n.seq = 0
	}
	n.last = ms
	return (ms&tsMask)<<(nodeBits+seqBits) | n.node<<seqBits | n.seq
}

// Split 拆出 ID 的生成时间、节点和序列
func Split(id int64) (at time.Time, node, seq int64) {
	ms := id >> (nodeBits + seqBits)
	return epoch.Add(time.Duration(ms) * time.Millisecond), (id >> seqBits) & maxNode, id & seqMask
}

var (
	defaultMu   sync.RWMutex
	defaultNode = NewNode(1)
)

// SetNodeID 多实例部署时每个实例必须不同，越界按 1 处理
func SetNodeID(node int64) {
	defaultMu.Lock()
	defaultNode = NewNode(node)
	defaultMu.Unlock()
}

// Generate 通知主键
func Generate() int64 {
	defaultMu.RLock()
	n := defaultNode
	defaultMu.RUnlock()
	return n.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}
