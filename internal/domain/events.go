package domain

// Kind identifies a normalized event category on the overlay wire.
type Kind string

const (
	KindFollow Kind = "follow"
	KindSub    Kind = "sub"
	KindBits   Kind = "bits"
)

// FollowEvent is a normalized channel.follow notification.
type FollowEvent struct {
	UserName   string `json:"user_name"`
	UserID     string `json:"user_id,omitempty"`
	FollowedAt string `json:"followed_at,omitempty"`
}

// SubEvent is a normalized channel.subscribe notification.
type SubEvent struct {
	UserName string `json:"user_name"`
	Tier     string `json:"tier,omitempty"`
	IsGift   bool   `json:"is_gift,omitempty"`
}

// CheerEvent is a normalized channel.cheer notification. UserName is
// "Anonymous" for anonymous cheers.
type CheerEvent struct {
	UserName string `json:"user_name"`
	Bits     int64  `json:"bits"`
	Message  string `json:"message,omitempty"`
}

// Latest holds the most recent event of each kind. A nil pointer means no
// event of that kind has been seen yet.
type Latest struct {
	Follow *FollowEvent `json:"follow"`
	Sub    *SubEvent    `json:"sub"`
	Bits   *CheerEvent  `json:"bits"`
}
