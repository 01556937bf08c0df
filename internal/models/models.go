package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role separates the two populations the deck is built for.
type Role string

const (
	RoleSeeker Role = "seeker"
	RolePoster Role = "poster"
)

// ListingKind distinguishes job posts from seeker profiles.
type ListingKind string

const (
	KindJob     ListingKind = "job"
	KindProfile ListingKind = "profile"
)

// Listing statuses. Jobs are open or closed; profiles use the availability values.
const (
	StatusOpen        = "open"
	StatusClosed      = "closed"
	StatusAvailable   = "available"
	StatusBusy        = "busy"
	StatusUnavailable = "unavailable"
)

// Account is a registered user. Wallet and quota columns are only written
// through the store's atomic account operations.
type Account struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	Role          Role       `gorm:"size:16;not null;index" json:"role"`
	Name          string     `gorm:"size:255" json:"name"`
	Phone         string     `gorm:"size:32;not null;uniqueIndex" json:"phone"`
	WeChat        string     `gorm:"size:64" json:"wechat,omitempty"`
	ReferralCode  string     `gorm:"size:32;uniqueIndex" json:"referralCode"`
	WalletBalance int64      `gorm:"not null;default:0" json:"walletBalance"`
	QuotaUsed     int        `gorm:"not null;default:0" json:"quotaUsed"`
	ExtraQuota    int        `gorm:"not null;default:0" json:"extraQuota"`
	QuotaResetOn  string     `gorm:"size:10;not null;default:''" json:"quotaResetOn"`
	VIPUntil      *time.Time `json:"vipUntil,omitempty"`
	Active        bool       `gorm:"not null" json:"active"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// BeforeCreate hands out a referral code when the caller did not pick one.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ReferralCode == "" {
		a.ReferralCode = "ref_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	}
	return nil
}

// IsVIP reports whether the VIP window is still open at now.
func (a *Account) IsVIP(now time.Time) bool {
	return a.VIPUntil != nil && a.VIPUntil.After(now)
}

// Listing is a card in somebody's deck: a job post or a seeker profile.
type Listing struct {
	ID              uint        `gorm:"primarykey" json:"id"`
	OwnerID         uint        `gorm:"not null;index" json:"ownerId"`
	Kind            ListingKind `gorm:"size:16;not null;index" json:"kind"`
	Title           string      `gorm:"size:255;not null" json:"title"`
	Wage            string      `gorm:"size:64" json:"wage"`
	Location        string      `gorm:"size:128" json:"location"`
	Tags            string      `gorm:"size:255" json:"tags"`
	Status          string      `gorm:"size:16;not null;index" json:"status"`
	ExperienceYears int         `gorm:"not null;default:0" json:"experienceYears"`
	Popularity      int64       `gorm:"not null;default:0" json:"popularity"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Experience renders the structured experience for display. Zero means the
// owner gave none or gave something unreadable; it still prices at one credit.
func (l *Listing) Experience() string {
	switch {
	case l.ExperienceYears <= 0:
		return "< 1 year"
	case l.ExperienceYears == 1:
		return "1 year"
	default:
		return fmt.Sprintf("%d years", l.ExperienceYears)
	}
}

// ParseExperience pulls the first run of digits out of free text such as
// "3 years" or "5年". Text without digits yields 0.
func ParseExperience(s string) int {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return atoiOrZero(s[start:i])
		}
	}
	if start >= 0 {
		return atoiOrZero(s[start:])
	}
	return 0
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Unlock grants a poster permanent visibility into a seeker's contact details.
type Unlock struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PosterID  uint      `gorm:"not null;uniqueIndex:ux_unlock_pair,priority:1" json:"posterId"`
	SeekerID  uint      `gorm:"not null;uniqueIndex:ux_unlock_pair,priority:2;index" json:"seekerId"`
	ListingID uint      `gorm:"not null" json:"listingId"`
	Cost      int64     `gorm:"not null;default:0" json:"cost"`
	CreatedAt time.Time `json:"createdAt"`
}

// Interest records a seeker's right-swipe on a job. PosterID is the job owner,
// which is what the poster feed ranks on.
type Interest struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	SeekerID  uint      `gorm:"not null;uniqueIndex:ux_interest,priority:1" json:"seekerId"`
	ListingID uint      `gorm:"not null;uniqueIndex:ux_interest,priority:2" json:"listingId"`
	PosterID  uint      `gorm:"not null;index" json:"posterId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Referral is the one edge allowed per referred account.
type Referral struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	ReferrerID     uint      `gorm:"not null;index" json:"referrerId"`
	ReferredID     uint      `gorm:"not null;uniqueIndex" json:"referredId"`
	CodeUsed       string    `gorm:"size:64" json:"codeUsed"`
	ReferrerReward int64     `gorm:"not null" json:"referrerReward"`
	ReferredReward int64     `gorm:"not null" json:"referredReward"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Conversation is the owner's summary of the thread with one counterpart.
type Conversation struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	OwnerID       uint       `gorm:"not null;uniqueIndex:ux_conversation,priority:1" json:"ownerId"`
	CounterpartID uint       `gorm:"not null;uniqueIndex:ux_conversation,priority:2" json:"counterpartId"`
	LastMessage   string     `gorm:"size:2000" json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	LastSenderID  uint       `json:"lastSenderId"`
	UnreadCount   int        `gorm:"not null;default:0" json:"unreadCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Message is immutable apart from the read acknowledgement stamp.
type Message struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	SenderID   uint       `gorm:"not null;index:idx_message_pair,priority:1" json:"senderId"`
	ReceiverID uint       `gorm:"not null;index:idx_message_pair,priority:2;index" json:"receiverId"`
	Content    string     `gorm:"size:2000;not null" json:"content"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}

// SwipeReceipt remembers the committed outcome of a swipe carrying a client
// idempotency key, so a blind retry replays instead of charging twice.
type SwipeReceipt struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	ViewerID      uint      `gorm:"not null;uniqueIndex:ux_receipt,priority:1" json:"viewerId"`
	Key           string    `gorm:"column:idempotency_key;size:128;not null;uniqueIndex:ux_receipt,priority:2" json:"key"`
	ListingID     uint      `gorm:"not null" json:"listingId"`
	Result        string    `gorm:"size:32;not null" json:"result"`
	Cost          int64     `json:"cost"`
	WalletBalance int64     `json:"walletBalance"`
	QuotaUsed     int       `json:"quotaUsed"`
	QuotaLimit    int       `json:"quotaLimit"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expiresAt"`
}

// All lists every table for migrations.
func All() []interface{} {
	return []interface{}{
		&Account{}, &Listing{}, &Unlock{}, &Interest{},
		&Referral{}, &Conversation{}, &Message{}, &SwipeReceipt{},
	}
}
