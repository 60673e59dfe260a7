package circuit

import (
	"fmt"
	"strings"
)

// Kind identifies a circuit operation.
type Kind string

const (
	KindU3      Kind = "u3"
	KindRY      Kind = "ry"
	KindRZ      Kind = "rz"
	KindCX      Kind = "cx"
	KindMeasure Kind = "measure"
)

// Op is a single gate or measurement.
// For KindCX, Qubits is [control, target]. For KindMeasure, Qubits lists every
// measured qubit and qubit i is recorded into classical bit i.
type Op struct {
	Kind   Kind      `json:"kind"`
	Qubits []int     `json:"qubits"`
	Params []float64 `json:"params,omitempty"`
}

// Circuit is an ordered sequence of operations over NumQubits qubits.
// Built once per evaluation and only executed afterwards.
type Circuit struct {
	NumQubits int  `json:"numQubits"`
	Ops       []Op `json:"ops"`
}

// New creates an empty circuit with n qubits and an n-bit classical register.
func New(n int) *Circuit {
	return &Circuit{NumQubits: n}
}

// U3 appends a three-angle rotation on qubit q.
func (c *Circuit) U3(q int, theta, phi, lambda float64) {
	c.Ops = append(c.Ops, Op{Kind: KindU3, Qubits: []int{q}, Params: []float64{theta, phi, lambda}})
}

// RY appends a Y rotation on qubit q.
func (c *Circuit) RY(q int, theta float64) {
	c.Ops = append(c.Ops, Op{Kind: KindRY, Qubits: []int{q}, Params: []float64{theta}})
}

// RZ appends a Z rotation on qubit q.
func (c *Circuit) RZ(q int, theta float64) {
	c.Ops = append(c.Ops, Op{Kind: KindRZ, Qubits: []int{q}, Params: []float64{theta}})
}

// CX appends a controlled-NOT.
func (c *Circuit) CX(control, target int) {
	c.Ops = append(c.Ops, Op{Kind: KindCX, Qubits: []int{control, target}})
}

// MeasureAll appends a measurement of every qubit into the classical register.
func (c *Circuit) MeasureAll() {
	qubits := make([]int, c.NumQubits)
	for i := range qubits {
		qubits[i] = i
	}
	c.Ops = append(c.Ops, Op{Kind: KindMeasure, Qubits: qubits})
}

// Count returns the number of operations of the given kind.
func (c *Circuit) Count(kind Kind) int {
	n := 0
	for _, op := range c.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Entanglers returns the (control, target) pairs of all CX gates in order.
func (c *Circuit) Entanglers() [][2]int {
	var pairs [][2]int
	for _, op := range c.Ops {
		if op.Kind == KindCX {
			pairs = append(pairs, [2]int{op.Qubits[0], op.Qubits[1]})
		}
	}
	return pairs
}

// QASM renders the circuit as OpenQASM 2.0.
func (c *Circuit) QASM() string {
	var b strings.Builder

	b.WriteString("OPENQASM 2.0;\n")
	b.WriteString("include \"qelib1.inc\";\n\n")
	fmt.Fprintf(&b, "qreg q[%d];\n", c.NumQubits)
	fmt.Fprintf(&b, "creg c[%d];\n\n", c.NumQubits)

	for _, op := range c.Ops {
		switch op.Kind {
		case KindMeasure:
			for _, q := range op.Qubits {
				fmt.Fprintf(&b, "measure q[%d] -> c[%d];\n", q, q)
			}
		case KindCX:
			fmt.Fprintf(&b, "cx q[%d],q[%d];\n", op.Qubits[0], op.Qubits[1])
		default:
			angles := make([]string, len(op.Params))
			for i, p := range op.Params {
				angles[i] = fmt.Sprintf("%.17g", p)
			}
			// qelib1 names the three-angle rotation "u3"
			fmt.Fprintf(&b, "%s(%s) q[%d];\n", op.Kind, strings.Join(angles, ","), op.Qubits[0])
		}
	}

	return b.String()
}
