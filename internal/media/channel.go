package media

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const channelPrefix = "call"

// ChannelName derives the media channel name from a pair of user ids. The
// pair is sorted so both sides compute the same name independent of who
// initiated the call.
func ChannelName(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)

	return fmt.Sprintf("%s-%s-%s", channelPrefix, pair[0], pair[1])
}

// ChannelNameIncludes reports whether the channel name was derived from a
// pair containing userID.
func ChannelNameIncludes(channelName, userID string) bool {
	rest, ok := strings.CutPrefix(channelName, channelPrefix+"-")
	if !ok {
		return false
	}

	// User ids may themselves contain '-', so match against both ends of the
	// sorted pair instead of splitting.
	return strings.HasPrefix(rest, userID+"-") || strings.HasSuffix(rest, "-"+userID)
}

// NewParticipantID derives the channel participant id from the user id and
// the join timestamp, so a stale session from an earlier tab of the same user
// is distinguishable from the live one.
func NewParticipantID(userID string, joinedAt time.Time) string {
	return fmt.Sprintf("%s-%d", userID, joinedAt.UnixMilli())
}

// IsGhost reports whether remoteID is a stale self-originated participant:
// one whose id carries selfUserID's prefix but is not the current session.
func IsGhost(remoteID, selfUserID string) bool {
	return strings.HasPrefix(remoteID, selfUserID+"-")
}
