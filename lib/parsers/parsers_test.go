package parsers

import (
	"testing"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := htmlutil.ParseDocument(markup)
	require.NoError(t, err)
	return doc
}

const entriesPage = `<html><body>
<div class="RaceList_Item02">
  <h1 class="RaceName">ジャパンC<span class="Icon_GradeType Icon_GradeType1"></span></h1>
  <div class="RaceData01">15:40発走 / 芝2400m (左 B) / 天候:晴<span class="Icon_Weather Weather01"></span><span class="Item04">/ 馬場:良</span></div>
  <div class="RaceData02"><span>5回</span><span>東京</span><span>8日目</span></div>
</div>
<table class="Shutuba_Table RaceTable01">
<tr class="Header"><th>枠</th><th>馬番</th></tr>
<tr class="HorseList" id="tr_1">
  <td class="Waku1 Txt_C"><span>1</span></td>
  <td class="Umaban1 Txt_C">1</td>
  <td class="CheckMark"></td>
  <td class="HorseInfo"><span class="HorseName"><a href="https://db.netkeiba.com/horse/2021105898">Horse A</a></span></td>
  <td class="Barei Txt_C">牡4</td>
  <td class="Txt_C">58.0</td>
  <td class="Jockey"><a>J1</a></td>
  <td class="Trainer"><span class="Label1">美浦</span><a>T1</a></td>
  <td class="Weight">512(+4)</td>
  <td class="Txt_R Popular"><span id="odds-1_01">3.4</span></td>
  <td class="Popular Popular_Ninki Txt_C"><span>1</span></td>
</tr>
<tr class="HorseList" id="tr_2">
  <td class="Waku2 Txt_C"><span>2</span></td>
  <td class="Umaban2 Txt_C">２</td>
  <td class="CheckMark"></td>
  <td class="HorseInfo"><span class="HorseName"><a href="https://db.netkeiba.com/horse/2020100001">Horse B</a></span></td>
  <td class="Barei Txt_C">牝5</td>
  <td class="Txt_C">56.0</td>
  <td class="Jockey"><a>J2</a></td>
  <td class="Trainer"><a>T2</a></td>
  <td class="Weight">466(-2)</td>
  <td class="Txt_R Popular"><span id="odds-1_02">---.-</span></td>
  <td class="Popular Popular_Ninki Txt_C"><span>**</span></td>
</tr>
<tr class="HorseList Cancel">
  <td class="Waku3 Txt_C"><span>3</span></td>
  <td class="Umaban3 Txt_C"></td>
  <td class="CheckMark"></td>
  <td class="HorseInfo"><span class="HorseName"><a>No Number</a></span></td>
</tr>
</table>
</body></html>`

func TestEntries(t *testing.T) {
	entries := Entries(parse(t, entriesPage), Central)

	require.Equal(t, race.Meta{
		RaceName:   "ジャパンC",
		RaceGrade:  "G1",
		Distance:   "15:40発走 / 芝2400m (左 B) / 天候:晴/ 馬場:良",
		Surface:    "芝",
		Meters:     2400,
		Weather:    "晴",
		Going:      "良",
		StartTime:  "15:40",
		RaceDetail: "5回東京8日目",
	}, entries.Meta)

	expected := []race.Horse{
		{
			Number:     "1",
			Frame:      "1",
			Name:       "Horse A",
			HorseID:    "2021105898",
			SexAge:     "牡4",
			Weight:     "58.0",
			Jockey:     "J1",
			Trainer:    "T1",
			BodyWeight: "512(+4)",
			Odds:       "3.4",
			Popularity: "1",
		},
		{
			Number:     "2",
			Frame:      "2",
			Name:       "Horse B",
			HorseID:    "2020100001",
			SexAge:     "牝5",
			Weight:     "56.0",
			Jockey:     "J2",
			Trainer:    "T2",
			BodyWeight: "466(-2)",
			Popularity: "**",
		},
	}
	if diff := cmp.Diff(expected, entries.Horses); diff != "" {
		t.Fatalf("unexpected horses (-want +got):\n%s", diff)
	}
}

func TestEntriesWithoutTable(t *testing.T) {
	entries := Entries(parse(t, `<html><body><h1 class="RaceName">x</h1></body></html>`), Regional)
	require.Equal(t, "x", entries.Meta.RaceName)
	require.NotNil(t, entries.Horses)
	require.Empty(t, entries.Horses)
}

func TestHorseNumber(t *testing.T) {
	for raw, want := range map[string]string{"1": "1", "01": "1", "１２": "12", " 7 ": "7"} {
		got, ok := HorseNumber(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got)
	}
	for _, raw := range []string{"", "0", "--", "取消", "123", "1a"} {
		_, ok := HorseNumber(raw)
		require.False(t, ok, raw)
	}
}

func TestEachRowRecoversPanics(t *testing.T) {
	doc := parse(t, `<table><tr><td>1</td></tr><tr><td>boom</td></tr><tr><td>3</td></tr></table>`)
	var seen []string
	eachRow(race.PageTraining, doc.Find("tr"), func(row *goquery.Selection) {
		text := htmlutil.Text(row)
		if text == "boom" {
			panic("unexpected layout")
		}
		seen = append(seen, text)
	})
	require.Equal(t, []string{"1", "3"}, seen)
}

const trainingPage = `<table class="OikiriTable">
<tr class="HorseList">
  <td class="Waku1">1</td><td class="Umaban">1</td>
  <td class="Horse_Info"><a>Horse A</a></td>
  <td class="Training_Day">2025/11/26(水)</td>
  <td class="Training_Course">美南P</td>
  <td class="Training_Baba">良</td>
  <td class="Training_Rider">助手</td>
  <td class="TrainingTimeData"><ul class="TrainingTimeDataList">
    <li>52.3<br>(13.5)</li><li>38.8<br>(13.0)</li><li>25.8<br>(12.9)</li><li>12.9<br>(12.9)</li>
  </ul></td>
  <td class="TrainingLoad">馬なり</td>
  <td class="Training_Critic">好調維持</td>
  <td class="Rank_A">A</td>
</tr>
<tr class="TrainingCommentRow"><td colspan="11" class="Training_Comment">same comment</td></tr>
<tr class="HorseList">
  <td class="Waku2">2</td><td class="Umaban">2</td>
  <td class="Horse_Info"><a>Horse B</a></td>
  <td class="Training_Day">2025/11/27(木)</td>
  <td class="Training_Course">園田</td>
  <td class="TrainingTime">52.0-38.0-12.5</td>
</tr>
<tr class="HorseList">
  <td class="Waku3">3</td><td class="Umaban">?</td>
  <td class="Training_Day">2025/11/27(木)</td>
</tr>
</table>`

func TestTraining(t *testing.T) {
	training := Training(parse(t, trainingPage), Central)
	require.Len(t, training, 2)

	a := training["1"]
	require.Equal(t, "好調維持", a.Evaluation)
	require.Equal(t, "A", a.Rank)
	require.Len(t, a.Sessions, 1)
	s := a.Sessions[0]
	require.Equal(t, "美浦", s.Facility)
	require.Equal(t, "南P", s.Course)
	require.Equal(t, "same comment", s.Comment)
	require.Equal(t, []string{"52.3", "38.8", "25.8", "12.9"}, s.Splits)
	require.Equal(t, []float64{52.3, 38.8, 25.8, 12.9}, s.Seconds)
	// +0.8s per 800m
	require.Equal(t, []float64{53.1, 39.4, 26.2, 13.1}, s.Converted)
	require.Equal(t, 800, s.Distance)

	b := training["2"].Sessions[0]
	require.Equal(t, []float64{52.0, 38.0, 12.5}, b.Seconds)
	require.Equal(t, b.Seconds, b.Converted, "no correction for an unknown facility")
}

func TestSplitCourse(t *testing.T) {
	facility, course := splitCourse("美浦南Ｗ")
	require.Equal(t, "美浦", facility)
	require.Equal(t, "南W", course)

	facility, course = splitCourse("栗ＣＷ")
	require.Equal(t, "栗東", facility)
	require.Equal(t, "CW", course)

	facility, course = splitCourse("坂路")
	require.Equal(t, "", facility)
	require.Equal(t, "坂路", course)
}

const pastPage = `<table class="Shutuba_Table Shutuba_Past5_Table">
<tr class="HorseList">
  <td class="Waku1">1</td><td class="Waku">1</td>
  <td class="Horse_Info">
    <div class="Horse01 fc">Sire A</div>
    <div class="Horse02"><a href="https://db.netkeiba.com/horse/2021105898">Horse A</a></div>
    <div class="Horse03">Dam A</div>
    <div class="Horse04">(DamSire A)</div>
  </td>
  <td class="Past">
    <div class="Data_Item">
      <div class="Data01"><span>2025.10.26 東京</span><span class="Num">3</span></div>
      <div class="Data02"><a>天皇賞(秋)</a></div>
      <div class="Data05">芝2000 1:57.3 <strong>良</strong></div>
      <div class="Data03">18頭 3番 2人 ルメール 58.0</div>
      <div class="Data06">3-3-2 (33.5) 510(+2)</div>
      <div class="Data07">Winner X(0.3)</div>
    </div>
  </td>
  <td class="Past"></td>
</tr>
<tr class="HorseList">
  <td class="Waku2">2</td><td class="Waku">2</td>
  <td class="Horse_Info"><div class="Horse02"><a>Horse B</a></div></td>
</tr>
</table>`

func TestPedigree(t *testing.T) {
	pedigree := Pedigree(parse(t, pastPage), Central)
	require.Equal(t, race.ByHorse[race.Pedigree]{
		"1": {Sire: "Sire A", Dam: "Dam A", DamSire: "DamSire A"},
	}, pedigree)
}

func TestPastResults(t *testing.T) {
	past := PastResults(parse(t, pastPage), Central)
	require.Equal(t, race.ByHorse[[]race.PastResult]{
		"1": {{
			Date:     "2025-10-26",
			Venue:    "Tokyo",
			RaceName: "天皇賞(秋)",
			Distance: "芝2000",
			Going:    "良",
			Finish:   "3",
			Runners:  "18",
			Jockey:   "ルメール",
			Time:     "1:57.3",
			Last3F:   "33.5",
			Passing:  "3-3-2",
			Weight:   "510(+2)",
			Winner:   "Winner X(0.3)",
		}},
		"2": {},
	}, past)
}

func TestComments(t *testing.T) {
	stable := StableComments(parse(t, `<table class="Stable_Comment">
<tr><th>馬番</th><th>コメント</th></tr>
<tr><td class="Waku">1</td><td class="Umaban">1</td><td class="Comment"><p class="Comment_Txt">same comment</p></td></tr>
<tr><td class="Waku">2</td><td class="Umaban">2</td><td class="Comment"></td></tr>
<tr><td class="Waku">-</td><td class="Umaban">-</td><td class="Comment">orphan</td></tr>
</table>`), Central)
	require.Equal(t, race.ByHorse[string]{"1": "same comment"}, stable)

	previous := PreviousComments(parse(t, `<table class="Zenso_Comment">
<tr><td class="Umaban">2</td><td class="Comment">出遅れが響いた</td></tr>
</table>`), Regional)
	require.Equal(t, race.ByHorse[string]{"2": "出遅れが響いた"}, previous)

	require.Empty(t, StableComments(parse(t, `<p>no comments yet</p>`), Central))
}

const resultPage = `<table id="All_Result_Table">
<tr class="HorseList">
  <td class="Result_Num"><div class="Rank">1</div></td><td class="Num Waku1">1</td><td class="Num Txt_C">2</td>
  <td class="Horse_Info"><a>Horse B</a></td>
  <td class="Time"><span class="RaceTime">2:23.5</span></td>
  <td class="Time"><span class="RaceTime"></span></td>
  <td class="PassageRate">2-2-2-1</td>
</tr>
<tr class="HorseList">
  <td class="Result_Num"><div class="Rank">2</div></td><td class="Num Waku1">1</td><td class="Num Txt_C">1</td>
  <td class="Horse_Info"><a>Horse A</a></td>
  <td class="Time"><span class="RaceTime">2:23.7</span></td>
  <td class="Time"><span class="RaceTime">1 1/4</span></td>
  <td class="PassageRate">5-5-4-3</td>
</tr>
<tr class="HorseList">
  <td class="Result_Num"><div class="Rank">取消</div></td><td class="Num Waku2">2</td><td class="Num Txt_C">3</td>
</tr>
</table>
<table class="Race_HaronTime"><tr class="HaronTime"><td>12.5</td><td>11.0</td><td>11.8</td></tr></table>
<table class="Corner_Num"><tr><th>1コーナー</th><td>2,1,3</td></tr></table>
<table class="Payout_Detail_Table">
<tr class="Tansho"><th>単勝</th><td class="Result"><div><span>2</span></div></td><td class="Payout"><span>340円</span></td><td class="Ninki"><span>1人気</span></td></tr>
<tr class="Fukusho"><th>複勝</th><td class="Result"><div><span>2</span></div><div><span>1</span></div></td><td class="Payout"><span>130円<br>110円</span></td><td class="Ninki"><span>1人気</span><span>2人気</span></td></tr>
<tr class="Umaren"><th>馬連</th><td class="Result"><ul><li><span>1</span></li><li><span>2</span></li></ul></td><td class="Payout"><span>420円</span></td><td class="Ninki"><span>1人気</span></td></tr>
</table>`

func TestResult(t *testing.T) {
	result := Result(parse(t, resultPage), Central)

	require.Equal(t, []string{"2", "1"}, result.Result.Order)
	require.Equal(t, "12.5-11.0-11.8", result.Result.Laps)
	require.Equal(t, []string{"1コーナー:2,1,3"}, result.Result.Corners)
	require.Equal(t, race.Finish{Position: "2", Time: "2:23.7", Margin: "1 1/4", Passing: "5-5-4-3"}, result.Finishes["1"])
	require.Equal(t, "取消", result.Finishes["3"].Position)

	require.Equal(t, []race.Payout{
		{Kind: "単勝", Numbers: "2", Amount: "340円", Popularity: "1人気"},
		{Kind: "複勝", Numbers: "2", Amount: "130円", Popularity: "1人気"},
		{Kind: "複勝", Numbers: "1", Amount: "110円", Popularity: "2人気"},
		{Kind: "馬連", Numbers: "1-2", Amount: "420円", Popularity: "1人気"},
	}, result.Payouts)
}

func TestOdds(t *testing.T) {
	odds := Odds(parse(t, `
<div id="odds_tan_block"><table>
<tr><th>人気</th><th>枠</th><th>馬番</th></tr>
<tr><td class="Popular">1</td><td class="Waku">1</td><td class="Umaban">1</td><td class="Odds"><span>3.4</span></td></tr>
<tr><td class="Popular">2</td><td class="Waku">1</td><td class="Umaban">2</td><td class="Odds"><span>---.-</span></td></tr>
</table></div>
<div id="odds_fuku_block"><table>
<tr><td class="Popular">1</td><td class="Waku">1</td><td class="Umaban">1</td><td class="Odds"><span>1.2 - 1.6</span></td></tr>
</table></div>`), Central)

	require.Equal(t, race.ByHorse[race.Odds]{
		"1": {Win: "3.4", PlaceLow: "1.2", PlaceHigh: "1.6", Popularity: "1"},
		"2": {Popularity: "2"},
	}, odds)
}

func TestPrediction(t *testing.T) {
	marks := Prediction(parse(t, `<table class="YosoTable">
<tr><th>馬番</th><th>CPU</th><th>記者A</th><th>指数</th></tr>
<tr><td class="Umaban">1</td><td class="Mark">◎</td><td class="Mark"><span class="Icon_Mark02"></span></td><td class="CPU_Score">85</td></tr>
<tr><td class="Umaban">2</td><td class="Mark"></td><td class="Mark">▲</td><td class="CPU_Score">70</td></tr>
</table>`), Central)

	require.Equal(t, race.ByHorse[race.Marks]{
		"1": {CPU: "◎", Score: "85", Predictors: map[string]string{"記者A": "○"}},
		"2": {Score: "70", Predictors: map[string]string{"記者A": "▲"}},
	}, marks)
}

func TestAIIndex(t *testing.T) {
	idx := AIIndex(parse(t, `<table class="AI_Index_Table">
<tr><td class="Umaban">1</td><td class="AI_Index">72.5</td><td class="AI_Rank">1</td><td class="AI_Win">31%</td><td class="AI_Place">64%</td></tr>
<tr><td class="Umaban">2</td></tr>
</table>`), Central)
	require.Equal(t, race.ByHorse[race.AIIndex]{
		"1": {Index: "72.5", Rank: "1", Win: "31%", Place: "64%"},
	}, idx)
}

func TestPoint(t *testing.T) {
	point := Point(parse(t, `<div class="PointArea">
<h2 class="PointTitle">レースのポイント</h2>
<p class="PointSummary">逃げ馬有利</p>
<ul class="PointList">
  <li class="PointItem"><span class="Umaban">1</span><span class="PointText">好調</span></li>
  <li class="PointItem"><span class="PointText">2番 : 距離延長歓迎</span></li>
  <li class="PointItem"><span class="PointText">全体に内枠有利</span></li>
</ul>
</div>`), Regional)

	require.Equal(t, "レースのポイント", point.Info.Title)
	require.Equal(t, "逃げ馬有利", point.Info.Summary)
	require.Len(t, point.Info.Points, 3)
	require.Equal(t, race.ByHorse[[]string]{
		"1": {"好調"},
		"2": {"2番 : 距離延長歓迎"},
	}, point.Reasons)

	empty := Point(parse(t, `<div>none</div>`), Regional)
	require.Empty(t, empty.Info.Points)
	require.Empty(t, empty.Reasons)
}
