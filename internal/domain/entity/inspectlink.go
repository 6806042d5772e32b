package entity

import (
	"fmt"
	"net/url"
	"regexp"

	"git.appkode.ru/pub/go/failure"

	"inspectfleet/pkg/errcodes"
)

// InspectLink is the canonical {s,a,d,m} tuple identifying a single item
// instance. Exactly one of S or M is non-"0".
type InspectLink struct {
	S string `json:"s"`
	A string `json:"a"`
	D string `json:"d"`
	M string `json:"m"`
}

// rawInspectLink is the structured request shape accepted alongside the
// raw steam:// URL form.
type rawInspectLink struct {
	A string `json:"a"`
	D string `json:"d"`
	S string `json:"s,omitempty"`
	M string `json:"m,omitempty"`
}

//nolint:gochecknoglobals
var inspectURLPattern = regexp.MustCompile(
	`^steam://rungame/730/\d+/\+csgo_econ_action_preview(?:%20| )(S(\d+)|M(\d+))A(\d+)D(\d+)$`,
)

func zeroOr(s string) string {
	if s == "" {
		return "0"
	}

	return s
}

func invalidInspect(msg string) error {
	return failure.NewInvalidArgumentError(
		msg,
		failure.WithCode(errcodes.InvalidInspect),
		failure.WithDescription(msg),
	)
}

// ParseInspectURL parses the steam:// inspect URL form into a canonical
// InspectLink.
func ParseInspectURL(raw string) (InspectLink, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}

	m := inspectURLPattern.FindStringSubmatch(decoded)
	if m == nil {
		return InspectLink{}, invalidInspect("malformed inspect url")
	}

	link := InspectLink{
		S: zeroOr(m[2]),
		M: zeroOr(m[3]),
		A: m[4],
		D: m[5],
	}

	return normalize(link)
}

// NewInspectLinkFromFields builds a canonical InspectLink from a
// structured request body carrying a, d and exactly one of s or m.
func NewInspectLinkFromFields(a, d, s, marketID string) (InspectLink, error) {
	link := InspectLink{
		A: a,
		D: d,
		S: zeroOr(s),
		M: zeroOr(marketID),
	}

	return normalize(link)
}

func normalize(link InspectLink) (InspectLink, error) {
	if link.A == "" || link.D == "" {
		return InspectLink{}, invalidInspect("missing a or d")
	}

	sSet := link.S != "0"
	mSet := link.M != "0"

	if sSet == mSet {
		return InspectLink{}, invalidInspect("exactly one of s or m must be set")
	}

	return link, nil
}

// IsMarketLink reports whether this link refers to a marketplace listing
// rather than a player's inventory.
func (l InspectLink) IsMarketLink() bool {
	return l.S == "0"
}

// Key is the cache/dedupe key for this link: its asset id.
func (l InspectLink) Key() string {
	return l.A
}

func (l InspectLink) String() string {
	return fmt.Sprintf("InspectLink{s:%s,a:%s,d:%s,m:%s}", l.S, l.A, l.D, l.M)
}
