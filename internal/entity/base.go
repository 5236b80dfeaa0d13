package entity

import "time"

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// SortParticipants orders two user ids so that a pair maps to the same key
// whichever side started the conversation.
func SortParticipants(userA, userB string) (low, high string) {
	if userA <= userB {
		return userA, userB
	}
	return userB, userA
}
