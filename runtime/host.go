package runtime

import (
	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/vm"
)

// processHost is the view of the scheduler a single process gets.
type processHost struct {
	s *Scheduler
	p *Process
}

var _ vm.Host = &processHost{}

func (h *processHost) Self() slp.Pid {
	return h.p.pid
}

func (h *processHost) Send(to slp.Pid, msg slp.Obj) error {
	return h.s.send(h.p.pid, to, msg)
}

func (h *processHost) Receive() (slp.Obj, bool) {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	return h.p.mailbox.pop()
}

func (h *processHost) Fork(child *vm.Machine) (slp.Pid, error) {
	p, err := h.s.register(child, h.p.pid)
	if err != nil {
		return slp.NilPid, err
	}
	return p.pid, nil
}

func (h *processHost) Watch(target slp.Pid) error {
	return h.s.watch(h.p.pid, target)
}
