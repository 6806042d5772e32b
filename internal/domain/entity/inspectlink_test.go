package entity_test

import (
	"testing"

	"git.appkode.ru/pub/go/failure"
	"github.com/stretchr/testify/require"

	"inspectfleet/internal/domain/entity"
	"inspectfleet/pkg/errcodes"
)

func TestParseInspectURL_InventoryLink(t *testing.T) {
	rq := require.New(t)

	link, err := entity.ParseInspectURL(
		"steam://rungame/730/76561202255233023/+csgo_econ_action_preview S76561198084749846A12345678901D9876543210987654321",
	)
	rq.NoError(err)
	rq.Equal("76561198084749846", link.S)
	rq.Equal("0", link.M)
	rq.Equal("12345678901", link.A)
	rq.Equal("9876543210987654321", link.D)
	rq.False(link.IsMarketLink())
}

func TestParseInspectURL_MarketLink(t *testing.T) {
	rq := require.New(t)

	link, err := entity.ParseInspectURL(
		"steam://rungame/730/76561202255233023/+csgo_econ_action_preview M1234567890123A12345678901D9876543210987654321",
	)
	rq.NoError(err)
	rq.Equal("0", link.S)
	rq.Equal("1234567890123", link.M)
	rq.True(link.IsMarketLink())
}

func TestParseInspectURL_Malformed(t *testing.T) {
	rq := require.New(t)

	_, err := entity.ParseInspectURL("not-a-steam-url")
	rq.Error(err)
	rq.Equal(errcodes.InvalidInspect, failure.Code(err))
}

func TestNewInspectLinkFromFields_RequiresExactlyOneOfSOrM(t *testing.T) {
	rq := require.New(t)

	_, err := entity.NewInspectLinkFromFields("1", "2", "", "")
	rq.Error(err, "neither s nor m set")

	_, err = entity.NewInspectLinkFromFields("1", "2", "3", "4")
	rq.Error(err, "both s and m set")

	link, err := entity.NewInspectLinkFromFields("1", "2", "3", "")
	rq.NoError(err)
	rq.Equal("3", link.S)
	rq.Equal("0", link.M)
}

func TestNewInspectLinkFromFields_RequiresAAndD(t *testing.T) {
	rq := require.New(t)

	_, err := entity.NewInspectLinkFromFields("", "2", "3", "")
	rq.Error(err)

	_, err = entity.NewInspectLinkFromFields("1", "", "3", "")
	rq.Error(err)
}

func TestInspectLink_KeyIsAssetID(t *testing.T) {
	rq := require.New(t)

	link, err := entity.NewInspectLinkFromFields("12345", "2", "3", "")
	rq.NoError(err)
	rq.Equal("12345", link.Key())
}
