package codec

import (
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Extractor walks a sealed Message's arguments in order, optionally
// coercing each to a caller-requested type. It is the incremental
// counterpart to Builder, mirroring start_extract/get_next.
type Extractor struct {
	msg *types.Message
	pos int
}

// StartExtract begins incremental extraction of msg's arguments.
func StartExtract(msg *types.Message) *Extractor {
	return &Extractor{msg: msg}
}

// GetNext returns the next argument coerced to code, or ok=false if the
// message is exhausted or the coercion fails. Passing the argument's own
// native code never fails and never consumes a coercion rule.
func (e *Extractor) GetNext(code types.TypeCode) (types.Value, bool) {
	if e.pos >= len(e.msg.Args) {
		return types.Value{}, false
	}
	v := e.msg.Args[e.pos]
	e.pos++
	if v.Code == code {
		return v, true
	}
	return Coerce(v, code)
}

// Remaining reports how many arguments have not yet been consumed.
func (e *Extractor) Remaining() int {
	return len(e.msg.Args) - e.pos
}
