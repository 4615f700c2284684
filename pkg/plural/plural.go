package plural

// S returns "s" when n calls for a plural noun.
func S[N ~int | ~int64](n N) string {
	if n == 1 {
		return ""
	}
	return "s"
}
