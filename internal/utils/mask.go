package utils

// MaskSecret keeps the first four characters of a credential for log lines.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "*****"
	}
	return s[:4] + "*****"
}
