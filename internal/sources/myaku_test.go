package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/pagetest"
)

const myakuText = `脈 -MYAKU PRIVATE SAUNA-
【水 -MIZU-】90分プラン（午後）
1/10
◯
1/11
✕
1/20
◯
【水 -MIZU-】ナイトパック
1/10
✕
1/11
○
【火 -HI-】90分プラン（午前）
1/12
◯
【謎 -NAZO-】特別プラン
1/10
◯
【休 -KYU-】90分プラン（午後）
お知らせ`

func TestParseMyakuPlans(t *testing.T) {
	t.Parallel()

	plans := ParseMyakuPlans(myakuText)
	require.Len(t, plans, 4)
	require.Equal(t, "水 -MIZU-", plans[0].Room)
	require.Equal(t, "90分プラン（午後）", plans[0].Plan)
	require.Equal(t, []MyakuPlanDay{
		{Month: 1, Day: 10, Open: true},
		{Month: 1, Day: 11, Open: false},
		{Month: 1, Day: 20, Open: true},
	}, plans[0].Days)
	require.Equal(t, "ナイトパック", plans[1].Plan)
	require.True(t, plans[1].Days[1].Open)
}

func TestParseMyakuPlansCapsAtOneWeek(t *testing.T) {
	t.Parallel()

	text := "【火 -HI-】90分プラン（午前）\n"
	for d := 1; d <= 9; d++ {
		text += "2/" + string(rune('0'+d)) + "\n◯\n"
	}
	plans := ParseMyakuPlans(text)
	require.Len(t, plans, 1)
	require.Len(t, plans[0].Days, 7)
}

func TestMyakuURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://spot-ly.jp/ja/hotels/176?checkinDatetime=2025-01-10+00%3A00%3A00&checkoutDatetime=2025-01-16+00%3A00%3A00",
		MyakuURL(testWindow()))
	require.Equal(t, myakuBaseURL, MyakuURL(nil))
}

func TestMyakuScrape(t *testing.T) {
	t.Parallel()

	window := testWindow()
	page := pagetest.New(map[string]pagetest.Doc{MyakuURL(window): {Text: myakuText}})
	snap, err := NewMyaku(Deps{}).Scrape(context.Background(), page, window)
	require.NoError(t, err)
	requireWellFormed(t, snap, window)

	mizu := availability.Room("水 MIZU（90分/定員2名）¥5,500")
	mizuNight := availability.Room("水 MIZU（night/定員2名）¥5,500")
	hi := availability.Room("火 HI（90分/定員4名）¥5,500")
	require.ElementsMatch(t, []availability.Room{mizu, mizuNight, hi}, snap.Rooms())

	require.Equal(t, []availability.TimeSlot{
		"13:00〜14:30", "15:00〜16:30", "17:00〜18:30", "19:00〜20:30", "21:00〜22:30", "23:00〜00:30",
	}, snap.Dates["2025-01-10"][mizu])
	require.Empty(t, snap.Dates["2025-01-11"][mizu])
	require.Equal(t, []availability.TimeSlot{"01:00〜08:30"}, snap.Dates["2025-01-11"][mizuNight])
	require.Equal(t, []availability.TimeSlot{"08:30〜10:00", "10:30〜12:00", "12:30〜14:00"}, snap.Dates["2025-01-12"][hi])
	require.Empty(t, snap.Dates["2025-01-16"][hi])
	require.NotContains(t, snap.Dates, availability.DateKey("2025-01-20"))
}

func TestMyakuScrapeWithoutPlans(t *testing.T) {
	t.Parallel()

	window := testWindow()
	page := pagetest.New(map[string]pagetest.Doc{MyakuURL(window): {Text: "ただいまメンテナンス中です"}})
	_, err := NewMyaku(Deps{}).Scrape(context.Background(), page, window)
	var sf *availability.ScrapeFailure
	require.ErrorAs(t, err, &sf)
	require.Equal(t, availability.CauseStructure, sf.Cause)
}

func TestMyakuScrapeUnknownRoomsOnly(t *testing.T) {
	t.Parallel()

	window := testWindow()
	page := pagetest.New(map[string]pagetest.Doc{MyakuURL(window): {Text: "【謎 -NAZO-】特別プラン\n1/10\n◯"}})
	_, err := NewMyaku(Deps{}).Scrape(context.Background(), page, window)
	var sf *availability.ScrapeFailure
	require.ErrorAs(t, err, &sf)
	require.Equal(t, availability.CauseStructure, sf.Cause)
}
