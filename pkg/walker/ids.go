package walker

// olderID reports whether a and b are both decimal ids and a < b. Snowflake
// ids grow with creation time, so a smaller id is an older post.
func olderID(a, b string) bool {
	if !isDecimal(a) || !isDecimal(b) {
		return false
	}
	a, b = trimZeros(a), trimZeros(b)
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}
