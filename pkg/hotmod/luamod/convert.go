package luamod

import (
	"fmt"
	"math"

	lua "github.com/Shopify/go-lua"
)

// pushValue pushes a Go value onto the Lua stack. Maps and slices become
// tables; unsupported types degrade to their string form.
func pushValue(l *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushInteger(int(v))
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	case map[string]any:
		l.NewTable()
		for key, item := range v {
			pushValue(l, item)
			l.SetField(-2, key)
		}
	case []any:
		l.NewTable()
		for idx, item := range v {
			pushValue(l, item)
			l.RawSetInt(-2, idx+1)
		}
	default:
		l.PushString(fmt.Sprintf("%v", v))
	}
}

// toGoValue converts the Lua value at index into a Go value. Tables with
// contiguous 1..n integer keys become slices, all other tables maps.
func toGoValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	default:
		return nil
	}
}

func tableToGo(l *lua.State, index int) any {
	index = l.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			result = append(result, toGoValue(l, -1))
			l.Pop(1)
		}
		return result
	}

	output := map[string]any{}
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			output[key] = toGoValue(l, -1)
		}
		l.Pop(1)
	}
	return output
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
