package rediskey

import "fmt"

const (
	LockPrefix          = "kickback:lock"
	ParticipationPrefix = "kickback:lock:participation"
	SequencePrefix      = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildParticipationLockKey returns "kickback:lock:participation:{campaignID}:{retailerEmail}"
func BuildParticipationLockKey(campaignID, retailerEmail string) string {
	return NamespaceKey(ParticipationPrefix, fmt.Sprintf("%s:%s", campaignID, retailerEmail))
}

// BuildLockKey returns "kickback:lock:{name}"
func BuildLockKey(name string) string {
	return NamespaceKey(LockPrefix, name)
}

// BuildDailySequenceKey returns "seq:{prefix}:{yymmdd}"
func BuildDailySequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, day))
}
