package wasm

import "bytes"

// ConstI32 reports the value of an init expression of the exact form
// [i32.const K, end].
func ConstI32(expr []byte) (int32, bool) {
	if len(expr) < 3 || expr[0] != OpI32Const || expr[len(expr)-1] != OpEnd {
		return 0, false
	}
	r := bytes.NewReader(expr[1 : len(expr)-1])
	v, err := ReadLEB128s(r)
	if err != nil || r.Len() != 0 {
		return 0, false
	}
	return v, true
}

// ConstI32Expr builds the init expression [i32.const v, end].
func ConstI32Expr(v int32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(OpI32Const)
	WriteLEB128s(&buf, v)
	buf.WriteByte(OpEnd)
	return buf.Bytes()
}

// ConstI64Expr builds the init expression [i64.const v, end].
func ConstI64Expr(v int64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(OpI64Const)
	WriteLEB128s64(&buf, v)
	buf.WriteByte(OpEnd)
	return buf.Bytes()
}
