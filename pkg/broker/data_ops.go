package broker

import "errors"

// ErrTypeClash is returned by Combine when the current value and the
// operand of an add/remove are not compatible, per §4.1 of the backend
// contract.
var ErrTypeClash = errors.New("broker: type clash")

// Identity returns the identity element Combine should use for a delta's
// Kind when the backend has no current value for the key yet ("If k is
// absent, treat existing value as the identity of the operation").
func Identity(deltaKind Kind) Data {
	switch deltaKind {
	case KindCount:
		return NewCount(0)
	case KindInt:
		return NewInt(0)
	case KindReal:
		return NewReal(0)
	case KindString:
		return NewString("")
	case KindSet:
		return NewSet()
	case KindVector:
		return NewVector()
	case KindTable:
		return NewTable(nil)
	default:
		return NewNone()
	}
}

// Combine implements the add/remove arithmetic of §4.1: count+count,
// integer+integer, real+real, string concatenation, set union/difference,
// vector append, table merge (right wins on key collision for add; remove
// deletes the right-hand keys from the left-hand table). inverse selects
// remove's semantics instead of add's.
func Combine(current, delta Data, inverse bool) (Data, error) {
	if current.kind != delta.kind {
		return Data{}, ErrTypeClash
	}
	switch current.kind {
	case KindCount:
		if inverse {
			if delta.countV > current.countV {
				return Data{}, ErrTypeClash
			}
			return NewCount(current.countV - delta.countV), nil
		}
		return NewCount(current.countV + delta.countV), nil
	case KindInt:
		if inverse {
			return NewInt(current.intV - delta.intV), nil
		}
		return NewInt(current.intV + delta.intV), nil
	case KindReal:
		if inverse {
			return NewReal(current.realV - delta.realV), nil
		}
		return NewReal(current.realV + delta.realV), nil
	case KindString:
		if inverse {
			return Data{}, ErrTypeClash
		}
		return NewString(current.stringV + delta.stringV), nil
	case KindSet:
		merged := make(map[string]Data, len(current.setV))
		for k, v := range current.setV {
			merged[k] = v
		}
		if inverse {
			for k := range delta.setV {
				delete(merged, k)
			}
		} else {
			for k, v := range delta.setV {
				merged[k] = v
			}
		}
		return Data{kind: KindSet, setV: merged}, nil
	case KindVector:
		if inverse {
			return Data{}, ErrTypeClash
		}
		merged := make([]Data, 0, len(current.vecV)+len(delta.vecV))
		merged = append(merged, current.vecV...)
		merged = append(merged, delta.vecV...)
		return Data{kind: KindVector, vecV: merged}, nil
	case KindTable:
		merged := make(map[string]tableEntry, len(current.tableV))
		for k, v := range current.tableV {
			merged[k] = v
		}
		if inverse {
			for k := range delta.tableV {
				delete(merged, k)
			}
		} else {
			for k, v := range delta.tableV {
				merged[k] = v
			}
		}
		return Data{kind: KindTable, tableV: merged}, nil
	default:
		return Data{}, ErrTypeClash
	}
}
