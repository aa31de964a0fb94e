// Package coordapi pkg/coordapi/reports.go
package coordapi

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skycoin/vpn-coordinator/pkg/session"
	"github.com/skycoin/vpn-coordinator/pkg/vpnerr"
)

// DefaultReportsLimit is how many reports are kept by default.
const DefaultReportsLimit = 50

// Report is something the coordinator asked the user to see or act on.
type Report struct {
	ID      uuid.UUID       `json:"id"`
	Time    time.Time       `json:"time"`
	Action  *session.Action `json:"action,omitempty"`
	Kind    vpnerr.Kind     `json:"kind,omitempty"`
	Code    vpnerr.ErrCode  `json:"code"`
	Message string          `json:"message,omitempty"`
}

// Reports keeps the latest coordinator reports. It implements
// coordinator.Reporter.
type Reports struct {
	mx    sync.Mutex
	limit int
	list  []Report
	subs  []func(Report)
}

// NewReports creates Reports keeping at most limit entries.
func NewReports(limit int) *Reports {
	if limit <= 0 {
		limit = DefaultReportsLimit
	}
	return &Reports{limit: limit}
}

// OnReport registers fn to be called with every new report.
func (rs *Reports) OnReport(fn func(Report)) {
	rs.mx.Lock()
	rs.subs = append(rs.subs, fn)
	rs.mx.Unlock()
}

// ReportAction implements coordinator.Reporter.
func (rs *Reports) ReportAction(a session.Action, cause error) {
	action := a
	rs.add(Report{
		Action:  &action,
		Kind:    vpnerr.KindOf(cause),
		Code:    vpnerr.CodeOf(cause),
		Message: errString(cause),
	})
}

// ReportError implements coordinator.Reporter.
func (rs *Reports) ReportError(err error) {
	rs.add(Report{
		Kind:    vpnerr.KindOf(err),
		Code:    vpnerr.CodeOf(err),
		Message: errString(err),
	})
}

// List returns the kept reports, oldest first.
func (rs *Reports) List() []Report {
	rs.mx.Lock()
	defer rs.mx.Unlock()

	out := make([]Report, len(rs.list))
	copy(out, rs.list)
	return out
}

func (rs *Reports) add(r Report) {
	r.ID = uuid.New()
	r.Time = time.Now()

	rs.mx.Lock()
	rs.list = append(rs.list, r)
	if len(rs.list) > rs.limit {
		rs.list = rs.list[len(rs.list)-rs.limit:]
	}
	subs := make([]func(Report), len(rs.subs))
	copy(subs, rs.subs)
	rs.mx.Unlock()

	for _, fn := range subs {
		fn(r)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
