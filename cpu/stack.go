package cpu

const (
	STACK_LIMIT = 16 // Maximum call depth of the architecture.
)

// Stack is the bounded call stack of saved program counters. The backing
// array never grows; overflow and underflow are reported to the caller.
type Stack struct {
	Data [STACK_LIMIT]uint16
	Sp   int // Next free slot. 0 is empty, STACK_LIMIT is full.
}

// Push saves a return address. Reports false when the stack is full.
func (s *Stack) Push(value uint16) (ok bool) {
	if s.Full() {
		return
	}

	s.Data[s.Sp] = value
	s.Sp++
	return true
}

// Pop removes and returns the most recent return address.
func (s *Stack) Pop() (value uint16, ok bool) {
	value, ok = s.Peek()
	if ok {
		s.Sp--
	}
	return
}

// Peek returns the most recent return address without removing it.
func (s *Stack) Peek() (value uint16, ok bool) {
	if s.Empty() {
		return
	}

	return s.Data[s.Sp-1], true
}

func (s *Stack) Empty() bool {
	return s.Sp == 0
}

func (s *Stack) Full() bool {
	return s.Sp == STACK_LIMIT
}

// Depth returns the number of live frames.
func (s *Stack) Depth() int {
	return s.Sp
}

func (s *Stack) Reset() {
	s.Sp = 0
}
