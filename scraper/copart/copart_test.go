package copart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<table id="serverSideDataTable"><tbody>
<tr>
  <td data-uname="lotsearchLotimage"><img src="//cs.copart.com/v1/AUTH_svc/45678912.jpg"></td>
  <td data-uname="lotsearchLotnumber"><a href="/lot/45678912">45678912</a></td>
  <td><span data-uname="lotsearchLotcenturyyear">2020</span>
      <span data-uname="lotsearchLotmake">BMW</span>
      <span data-uname="lotsearchLotmodel">530I</span>
      <span data-uname="lotsearchLotdescription">2020 BMW   530I</span></td>
  <td data-uname="lotsearchLotcurrentbid">$15,200.00 USD</td>
  <td data-uname="lotsearchLotbuynowprice">$22,000.00</td>
  <td data-uname="lotsearchLotdamagedescription">FRONT END</td>
  <td data-uname="lotsearchSaletitletype">CLEAN TITLE</td>
  <td data-uname="lotsearchLotyardname">NJ - TRENTON</td>
  <td data-uname="lotsearchLotauctiondate">Mon. Jan 15, 2024</td>
</tr>
<tr>
  <td data-uname="lotsearchLotnumber"><a href="/lot/45678912">45678912</a></td>
</tr>
<tr>
  <td data-uname="lotsearchLotnumber"><a href="https://www.copart.com/lot/31234567">31234567</a></td>
  <td data-uname="lotsearchLotdescription">2019 TOYOTA CAMRY SE</td>
  <td data-uname="lotsearchLotcurrentbid">$9,100.00 USD</td>
  <td data-uname="lotsearchLotdamagedescription">REAR END</td>
</tr>
<tr><td>advertisement</td></tr>
</tbody></table>
</body></html>`

func TestExtractListings(t *testing.T) {
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	got, err := ExtractListings(resultsPage, at)

	require.NoError(t, err)
	require.Len(t, got, 2)

	bmw := got[0]
	assert.Equal(t, "45678912", bmw.LotNumber)
	assert.Equal(t, "2020", bmw.Year)
	assert.Equal(t, "BMW", bmw.Make)
	assert.Equal(t, "530I", bmw.Model)
	assert.Equal(t, "2020 BMW 530I", bmw.Title)
	assert.Equal(t, "$15,200.00 USD", bmw.CurrentBid)
	assert.Equal(t, "$22,000.00", bmw.BuyNowPrice)
	assert.Equal(t, "FRONT END", bmw.Damage)
	assert.Equal(t, "CLEAN TITLE", bmw.TitleStatus)
	assert.Equal(t, "NJ - TRENTON", bmw.Location)
	assert.Equal(t, "Mon. Jan 15, 2024", bmw.SaleDate)
	assert.Equal(t, "https://www.copart.com/lot/45678912", bmw.Link)
	assert.Equal(t, "https://cs.copart.com/v1/AUTH_svc/45678912.jpg", bmw.ImageURL)
	assert.Equal(t, "copart", bmw.Source)
	assert.Equal(t, at, bmw.ScrapedAt)

	camry := got[1]
	assert.Equal(t, "31234567", camry.LotNumber)
	assert.Equal(t, "2019 TOYOTA CAMRY SE", camry.Title)
	assert.Empty(t, camry.Make)
	assert.Equal(t, "https://www.copart.com/lot/31234567", camry.Link)
}

func TestExtractListingsEmptyPage(t *testing.T) {
	got, err := ExtractListings("<html><body><p>No results</p></body></html>", time.Now())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchURL(t *testing.T) {
	tests := []struct {
		base, model, want string
	}{
		{"https://www.copart.com/lotSearchResults/", "", "https://www.copart.com/lotSearchResults/"},
		{"https://www.copart.com/lotSearchResults/", " camry ", "https://www.copart.com/lotSearchResults/?free=true&query=camry"},
		{"https://www.copart.com/lotSearchResults/", "bmw 530i", "https://www.copart.com/lotSearchResults/?free=true&query=bmw+530i"},
	}

	for _, tt := range tests {
		if got := SearchURL(tt.base, tt.model); got != tt.want {
			t.Errorf("SearchURL(%q, %q) = %q, want %q", tt.base, tt.model, got, tt.want)
		}
	}
}
