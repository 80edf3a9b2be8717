package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

type stage struct {
	name string
	h    gin.HandlerFunc
}

// Chain 全局中间件链，按名字登记，运行期可替换或摘除某一段
type Chain struct {
	mu     sync.RWMutex
	stages []stage
}

func NewChain() *Chain { return &Chain{} }

// Set 同名替换原位置，否则追加到末尾
func (m *Chain) Set(name string, h gin.HandlerFunc) *Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.stages {
		if m.stages[i].name == name {
			m.stages[i].h = h
			return m
		}
	}
	m.stages = append(m.stages, stage{name: name, h: h})
	return m
}

func (m *Chain) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.stages {
		if m.stages[i].name == name {
			m.stages = append(m.stages[:i], m.stages[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Chain) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.stages))
	for i, s := range m.stages {
		out[i] = s.name
	}
	return out
}

// Handler 每个请求取一次快照；任一段 Abort 后不再往下走
func (m *Chain) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		snap := make([]stage, len(m.stages))
		copy(snap, m.stages)
		m.mu.RUnlock()

		for _, s := range snap {
			s.h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
