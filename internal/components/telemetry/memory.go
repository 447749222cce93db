package telemetry

import (
	"fmt"
	"sync"
)

type ReportKind int

const (
	KindBroken ReportKind = iota
	KindWarning
	KindInfo
	KindDebug
	KindCount
)

func (k ReportKind) String() string {
	switch k {
	case KindBroken:
		return "broken"
	case KindWarning:
		return "warning"
	case KindInfo:
		return "info"
	case KindDebug:
		return "debug"
	case KindCount:
		return "count"
	}
	return fmt.Sprintf("ReportKind(%d)", int(k))
}

// Report is a single call made against a MemoryAPI. For ReportInfo and ReportDebug,
// Id holds the message.
type Report struct {
	Kind   ReportKind
	Id     string
	Params []any
	Count  int64
}

// MemoryAPI keeps every report in memory so tests can assert on what was logged.
// It is safe for concurrent use.
type MemoryAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func NewMemoryAPI() *MemoryAPI {
	return &MemoryAPI{}
}

func (m *MemoryAPI) add(r Report) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reports = append(m.reports, r)
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.add(Report{Kind: KindBroken, Id: id, Params: params})
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.add(Report{Kind: KindWarning, Id: id, Params: params})
}

func (m *MemoryAPI) ReportInfo(msg string, params ...any) {
	m.add(Report{Kind: KindInfo, Id: msg, Params: params})
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.add(Report{Kind: KindDebug, Id: msg, Params: params})
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.add(Report{Kind: KindCount, Id: id, Count: count})
}

// Reports returns a copy of every report of the given kind, in the order they were made.
func (m *MemoryAPI) Reports(kind ReportKind) []Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []Report
	for _, r := range m.reports {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
