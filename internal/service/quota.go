package service

// WouldExceed reports whether adding incoming bytes to used goes over allowed.
// Landing exactly on the allowance is accepted.
func WouldExceed(used, incoming, allowed int64) bool {
	return used+incoming > allowed
}

// PercentageUsed is used/allowed as a percentage, 0 when nothing is allowed.
func PercentageUsed(used, allowed int64) float64 {
	if allowed <= 0 {
		return 0
	}
	return float64(used) / float64(allowed) * 100
}
