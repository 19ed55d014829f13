package services

import (
	"sync/atomic"
	"time"
)

// Metrics holds process-wide capture counters. All fields are atomics;
// safe for use from capture loops, handlers, and the broadcaster.
type Metrics struct {
	totalFrames    atomic.Int64
	totalChunks    atomic.Int64
	readErrors     atomic.Int64
	journalErrors  atomic.Int64
	activeSessions atomic.Int32
	lastFrameTime  atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncrementFrames() {
	m.totalFrames.Add(1)
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementChunks() {
	m.totalChunks.Add(1)
}

func (m *Metrics) IncrementReadErrors() {
	m.readErrors.Add(1)
}

func (m *Metrics) IncrementJournalErrors() {
	m.journalErrors.Add(1)
}

func (m *Metrics) SetActiveSessions(count int) {
	m.activeSessions.Store(int32(count))
}

func (m *Metrics) GetTotalFrames() int64 {
	return m.totalFrames.Load()
}

func (m *Metrics) GetTotalChunks() int64 {
	return m.totalChunks.Load()
}

func (m *Metrics) GetReadErrors() int64 {
	return m.readErrors.Load()
}

func (m *Metrics) GetJournalErrors() int64 {
	return m.journalErrors.Load()
}

func (m *Metrics) GetActiveSessions() int {
	return int(m.activeSessions.Load())
}

func (m *Metrics) GetLastFrameTime() int64 {
	return m.lastFrameTime.Load()
}

// Live-channel counters, maintained by the WebSocket handler.

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

func (m *Metrics) GetWebSocketMessages() int64 {
	return m.wsMessages.Load()
}

func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

func (m *Metrics) GetWebSocketErrors() int64 {
	return m.wsErrors.Load()
}

// GetWebSocketMetrics groups the live-channel counters for the
// metrics endpoint.
func (m *Metrics) GetWebSocketMetrics() map[string]interface{} {
	return map[string]interface{}{
		"connections": m.wsConnections.Load(),
		"messages":    m.wsMessages.Load(),
		"errors":      m.wsErrors.Load(),
	}
}
