// Package storagetypes holds the persisted entity types. It exists so
// the storage layer and the lifecycle packages can share them without
// import cycles.
package storagetypes

import "time"

// TicketStatus is the lifecycle state of a support ticket. Locked is a
// separate boolean on Ticket: the stored flag is the source of truth
// and the channel permission overwrite follows it.
type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketClaimed TicketStatus = "claimed"
	TicketClosed  TicketStatus = "closed"
)

// Ticket is a support-conversation record tied to a dedicated channel.
// Once Status reaches TicketClosed the record is terminal: it is kept
// for audit but never mutated again.
type Ticket struct {
	ID          string       `json:"id"`
	GuildID     string       `json:"guild_id"`
	OpenerID    string       `json:"opener_id"`
	ChannelID   string       `json:"channel_id"`
	ParentID    string       `json:"parent_id,omitempty"`
	Status      TicketStatus `json:"status"`
	ClaimedBy   string       `json:"claimed_by,omitempty"`
	Locked      bool         `json:"locked"`
	Members     []string     `json:"members,omitempty"`
	ActionLog   []string     `json:"action_log,omitempty"`
	CloseReason string       `json:"close_reason,omitempty"`
	ClosedBy    string       `json:"closed_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
}

// TicketSetup is the per-guild ticket system configuration.
type TicketSetup struct {
	PanelChannelID string `json:"panel_channel_id"`
	CategoryID     string `json:"category_id,omitempty"`
	StaffRoleID    string `json:"staff_role_id"`
	LogChannelID   string `json:"log_channel_id,omitempty"`
}

// ManagedVoice is an ephemeral voice channel created by the
// join-to-create subsystem. Exactly one owner at any time; the record
// and the underlying channel are deleted together when the channel
// empties.
type ManagedVoice struct {
	GuildID      string   `json:"guild_id"`
	ChannelID    string   `json:"channel_id"`
	OwnerID      string   `json:"owner_id"`
	UserLimit    int      `json:"user_limit"`
	Bitrate      int      `json:"bitrate,omitempty"`
	Locked       bool     `json:"locked"`
	AllowedUsers []string `json:"allowed_users,omitempty"`
	AllowedRoles []string `json:"allowed_roles,omitempty"`
}

// VoiceSetup is the per-guild join-to-create configuration.
type VoiceSetup struct {
	TriggerChannelID string `json:"trigger_channel_id"`
	ParentID         string `json:"parent_id,omitempty"`
}

// Wallet is a user's economy balance within one guild.
type Wallet struct {
	Balance   int64     `json:"balance"`
	LastDaily time.Time `json:"last_daily,omitempty"`
}

// ShopItem is a purchasable entry in a guild's shop.
type ShopItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
}

// Transaction records a balance movement for audit.
type Transaction struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Amount int64     `json:"amount"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Infraction is a moderation record against a user.
type Infraction struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	ModID  string    `json:"mod_id"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// CommandHistoryRecord is one entry of the per-guild command log.
type CommandHistoryRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Datetime  time.Time `json:"datetime"`
}
