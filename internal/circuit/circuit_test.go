package circuit

import (
	"strings"
	"testing"
)

func TestCircuitCounts(t *testing.T) {
	c := New(2)
	c.U3(0, 0.1, 0.2, 0.3)
	c.RY(1, 0.5)
	c.RZ(1, 0.25)
	c.CX(0, 1)
	c.MeasureAll()

	if got := c.Count(KindU3); got != 1 {
		t.Errorf("Expected 1 u3, got %d", got)
	}
	if got := c.Count(KindMeasure); got != 1 {
		t.Errorf("Expected 1 measure, got %d", got)
	}

	pairs := c.Entanglers()
	if len(pairs) != 1 || pairs[0] != [2]int{0, 1} {
		t.Errorf("Unexpected entanglers: %v", pairs)
	}

	last := c.Ops[len(c.Ops)-1]
	if len(last.Qubits) != 2 {
		t.Errorf("Measurement should cover 2 qubits, got %v", last.Qubits)
	}
}

func TestCircuitQASM(t *testing.T) {
	c := New(2)
	c.U3(0, 1, 2, 3)
	c.RY(1, 0.5)
	c.CX(0, 1)
	c.MeasureAll()

	qasm := c.QASM()

	for _, want := range []string{
		"OPENQASM 2.0;",
		"qreg q[2];",
		"creg c[2];",
		"u3(1,2,3) q[0];",
		"ry(0.5) q[1];",
		"cx q[0],q[1];",
		"measure q[0] -> c[0];",
		"measure q[1] -> c[1];",
	} {
		if !strings.Contains(qasm, want) {
			t.Errorf("QASM missing %q:\n%s", want, qasm)
		}
	}
}
