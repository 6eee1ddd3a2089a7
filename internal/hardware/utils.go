package hardware

// valueFromLevel converts to the 0/1 line values used by the character device API.
func valueFromLevel(l Level) int {
	if l == High {
		return 1
	}
	return 0
}

func levelFromValue(v int) Level {
	return v != 0
}
