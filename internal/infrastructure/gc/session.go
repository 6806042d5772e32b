// Package gc defines the contract this service expects from the game
// back-end/game-coordinator client library, and drives it with the Bot
// session state machine and Fleet (Bot Controller).
//
// The wire codec itself is out of scope (spec §6.3, §1): it is an
// external library contract. Session is that contract expressed as a Go
// interface; a concrete implementation is supplied by the operator. The
// persistent-session + round-robin-pool idiom is adapted from the
// teacher's internal/infrastructure/telegram.{ClientPool,Client}, but
// driven here against this interface instead of github.com/gotd/td,
// which speaks an unrelated wire protocol.
package gc

// Credentials authenticates one Bot's session.
type Credentials struct {
	AccountName      string
	Password         string
	RememberPassword bool
	AuthCode         string
	TwoFactorCode    string
}

// ItemInfo is the raw inspect response as the coordinator reports it,
// before the Bot's post-response field renames (see Bot.handleItemInfo).
type ItemInfo struct {
	ItemID     string
	PaintWear  float64
	PaintSeed  *int
	PaintIndex int
	DefIndex   int
	Stickers   []StickerInfo
	Keychains  []KeychainInfo
}

type StickerInfo struct {
	Slot      int
	StickerID int
	Wear      *float64
}

type KeychainInfo struct {
	Slot       int
	KeychainID int
	Pattern    int
}

// EventKind discriminates the Session event stream.
type EventKind int

const (
	EventLoggedOn EventKind = iota
	EventDisconnected
	EventError
	EventConnectedToGC
	EventDisconnectedFromGC
	EventOwnershipCached
	EventInspectItemInfo
)

// Event is one entry from a Session's merged event stream. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// EventDisconnected
	EResult int
	Message string

	// EventError
	Err error

	// EventDisconnectedFromGC
	Reason string

	// EventInspectItemInfo
	Item ItemInfo
}

// Session is the external library contract: a single authenticated
// connection to the game back-end and its game-coordinator subchannel.
type Session interface {
	// Login begins authentication; results surface as EventLoggedOn or
	// EventDisconnected on the Events channel.
	Login(creds Credentials) error
	LogOff() error
	GamesPlayed(appIDs []uint32) error
	// InspectItem issues an async inspect request; the response surfaces
	// as EventInspectItemInfo with Item.ItemID == assetID.
	InspectItem(owner, assetID, d string) error
	Events() <-chan Event
}
