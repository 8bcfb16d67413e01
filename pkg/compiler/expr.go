package compiler

import (
	"evsc/pkg/ident"
)

// OpRef indexes into an Expr's op slice. Every op only refers to ops that
// precede it, so the slice is already in evaluation order.
type OpRef int

type OpKind int

const (
	OpNumber OpKind = iota
	OpString
	OpVariable
	OpAddress
	OpCall
	OpNeg
	OpCpl
	OpDeref
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpBinAnd
	OpBinXor
	OpBinOr
	OpEqu
	OpNotEqu
	OpLess
	OpGreater
	OpLessEqu
	OpGreaterEqu
	OpLogAnd
	OpLogOr
)

// Op is one node of a flattened expression. Which fields are meaningful
// depends on Kind: leaves carry Num, Str, or Name; unary ops use L; binary
// ops use L and R; calls use Name and Args.
type Op struct {
	Kind OpKind
	Num  int64
	Str  string
	Name ident.Ident
	Args []OpRef
	L, R OpRef
	Span Span
}

// Expr is an append-only arena of ops. The final op produces the
// expression's value.
type Expr struct {
	ops []Op
}

// Result returns the op producing the expression's value.
func (e *Expr) Result() OpRef { return OpRef(len(e.ops) - 1) }

// Op returns the op at ref.
func (e *Expr) Op(ref OpRef) *Op { return &e.ops[ref] }

// ConstEval reports the expression's value when it folded down to a single
// number.
func (e *Expr) ConstEval() (int64, bool) {
	if len(e.ops) == 1 && e.ops[0].Kind == OpNumber {
		return e.ops[0].Num, true
	}
	return 0, false
}

func NumberExpr(v int64, span Span) Expr {
	return Expr{ops: []Op{{Kind: OpNumber, Num: v, Span: span}}}
}

func StringExpr(s string, span Span) Expr {
	return Expr{ops: []Op{{Kind: OpString, Str: s, Span: span}}}
}

func VariableExpr(name ident.Ident, span Span) Expr {
	return Expr{ops: []Op{{Kind: OpVariable, Name: name, Span: span}}}
}

func AddressExpr(name ident.Ident, span Span) Expr {
	return Expr{ops: []Op{{Kind: OpAddress, Name: name, Span: span}}}
}

// splice copies src's ops onto the end of e, rebasing every internal ref by
// the landing offset so the backward-reference invariant holds in the
// combined arena. Returns the ref of src's result within e.
func (e *Expr) splice(src Expr) OpRef {
	base := OpRef(len(e.ops))
	for _, op := range src.ops {
		op.L += base
		op.R += base
		if op.Args != nil {
			args := make([]OpRef, len(op.Args))
			for i, a := range op.Args {
				args[i] = a + base
			}
			op.Args = args
		}
		e.ops = append(e.ops, op)
	}
	return OpRef(len(e.ops) - 1)
}

// CallExpr splices each argument's arena into one, recording where each
// argument's result landed, then appends the call op.
func CallExpr(name ident.Ident, args []Expr, span Span) Expr {
	var e Expr
	refs := make([]OpRef, 0, len(args))
	for _, arg := range args {
		refs = append(refs, e.splice(arg))
	}
	e.ops = append(e.ops, Op{Kind: OpCall, Name: name, Args: refs, Span: span})
	return e
}

// UnaryExpr applies a unary operator, folding it away when the operand is a
// lone constant.
func UnaryExpr(kind OpKind, operand Expr, span Span) Expr {
	if v, ok := operand.ConstEval(); ok {
		switch kind {
		case OpNeg:
			return NumberExpr(-v, span)
		case OpCpl:
			return NumberExpr(^v, span)
		}
	}
	operand.ops = append(operand.ops, Op{Kind: kind, L: operand.Result(), Span: span})
	return operand
}

// BinaryExpr combines two expressions with a binary operator. Two lone
// constants fold immediately; folding is the only place a division by zero
// can be caught at compile time.
func BinaryExpr(kind OpKind, lhs, rhs Expr, span Span) (Expr, error) {
	lv, lok := lhs.ConstEval()
	rv, rok := rhs.ConstEval()
	if lok && rok {
		v, err := foldBinary(kind, lv, rv, span)
		if err != nil {
			return Expr{}, err
		}
		return NumberExpr(v, span), nil
	}
	left := lhs.Result()
	right := lhs.splice(rhs)
	lhs.ops = append(lhs.ops, Op{Kind: kind, L: left, R: right, Span: span})
	return lhs, nil
}

func foldBinary(kind OpKind, l, r int64, span Span) (int64, error) {
	b2i := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}
	switch kind {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return 0, errorf(span, "Division by zero in constant expression")
		}
		return l / r, nil
	case OpMod:
		if r == 0 {
			return 0, errorf(span, "Division by zero in constant expression")
		}
		return l % r, nil
	case OpShl:
		return l << uint(r), nil
	case OpShr:
		return l >> uint(r), nil
	case OpBinAnd:
		return l & r, nil
	case OpBinXor:
		return l ^ r, nil
	case OpBinOr:
		return l | r, nil
	case OpEqu:
		return b2i(l == r), nil
	case OpNotEqu:
		return b2i(l != r), nil
	case OpLess:
		return b2i(l < r), nil
	case OpGreater:
		return b2i(l > r), nil
	case OpLessEqu:
		return b2i(l <= r), nil
	case OpGreaterEqu:
		return b2i(l >= r), nil
	case OpLogAnd:
		return b2i(l != 0 && r != 0), nil
	case OpLogOr:
		return b2i(l != 0 || r != 0), nil
	}
	panic("foldBinary: not a binary op kind")
}

// opMnemonic names the bytecode operation family a binary op lowers to. The
// full opcode name is the mnemonic suffixed with the operand type.
func opMnemonic(kind OpKind) string {
	switch kind {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpMod:
		return "mod"
	case OpShl:
		return "shl"
	case OpShr:
		return "shr"
	case OpBinAnd:
		return "band"
	case OpBinXor:
		return "bxor"
	case OpBinOr:
		return "bor"
	case OpEqu:
		return "equ"
	case OpNotEqu:
		return "nequ"
	case OpLess:
		return "lt"
	case OpGreater:
		return "gt"
	case OpLessEqu:
		return "lte"
	case OpGreaterEqu:
		return "gte"
	case OpLogAnd:
		return "land"
	case OpLogOr:
		return "lor"
	}
	panic("opMnemonic: not a binary op kind")
}
